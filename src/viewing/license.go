package viewing

import (
	"context"
	"time"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/utils"
	"golang.org/x/sync/errgroup"
)

type LicenseReader interface {
	HasValidLicense(ctx context.Context, holder string, courseID uint64) (bool, error)
	GetLicense(ctx context.Context, holder string, courseID uint64) (models.License, error)
	GetUserProgress(ctx context.Context, holder string, courseID uint64) (models.Progress, error)
}

type Access struct {
	Valid    bool
	License  *models.License // nil unless valid and the detail read worked
	Progress models.Progress

	// CheckErr is set when the validity read itself kept failing.
	CheckErr error
}

/*
LicenseResolver answers "can this address watch this course, and how far
along are they". Freshly purchased licenses sometimes read as invalid for a
moment because the chain client caches reads, so a negative answer is
checked again after a short delay. Only the last read counts.
*/
type LicenseResolver struct {
	Reader       LicenseReader
	RecheckDelay time.Duration
	Rechecks     int

	Sleep func(ctx context.Context, d time.Duration) error
}

func NewLicenseResolver(reader LicenseReader, cfg config.ViewingConfig) *LicenseResolver {
	return &LicenseResolver{
		Reader:       reader,
		RecheckDelay: cfg.LicenseRecheckDelay,
		Rechecks:     cfg.LicenseRechecks,
		Sleep:        utils.SleepContext,
	}
}

// Resolve only returns an error if ctx is done. Everything else degrades to
// a renderable default.
func (r *LicenseResolver) Resolve(ctx context.Context, holder string, courseID uint64) (Access, error) {
	access := Access{Progress: models.ZeroProgress(holder, courseID)}
	if holder == "" {
		return access, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		valid, err := r.checkValidity(gctx, holder, courseID)
		if ctxErr := gctx.Err(); ctxErr != nil {
			return ctxErr
		}
		access.Valid = valid
		access.CheckErr = err
		if !valid {
			return nil
		}

		license, err := r.Reader.GetLicense(gctx, holder, courseID)
		if err != nil {
			logging.ExtractLogger(gctx).Warn().Err(err).Uint64("courseId", courseID).Msg("failed to read license details")
			return nil
		}
		access.License = &license
		return nil
	})
	g.Go(func() error {
		access.Progress = r.Progress(gctx, holder, courseID)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return Access{Progress: models.ZeroProgress(holder, courseID)}, err
	}
	return access, nil
}

func (r *LicenseResolver) checkValidity(ctx context.Context, holder string, courseID uint64) (bool, error) {
	log := logging.ExtractLogger(ctx)

	valid, err := r.Reader.HasValidLicense(ctx, holder, courseID)
	for attempt := 0; attempt < r.Rechecks && (err != nil || !valid); attempt++ {
		log.Debug().Err(err).Uint64("courseId", courseID).Dur("delay", r.RecheckDelay).Msg("license not valid yet, checking again")
		if sleepErr := r.sleep(ctx, r.RecheckDelay); sleepErr != nil {
			return false, sleepErr
		}
		valid, err = r.Reader.HasValidLicense(ctx, holder, courseID)
	}
	if err != nil {
		log.Warn().Err(err).Uint64("courseId", courseID).Msg("license check failed")
		return false, err
	}
	return valid, nil
}

// Progress never fails; an unreadable snapshot becomes an empty one.
func (r *LicenseResolver) Progress(ctx context.Context, holder string, courseID uint64) models.Progress {
	progress, err := r.Reader.GetUserProgress(ctx, holder, courseID)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Uint64("courseId", courseID).Msg("failed to read progress")
		return models.ZeroProgress(holder, courseID)
	}
	return progress
}

func (r *LicenseResolver) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep == nil {
		return utils.SleepContext(ctx, d)
	}
	return r.Sleep(ctx, d)
}
