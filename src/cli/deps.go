package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/db"
	"github.com/eduverse-labs/eduverse/src/journal"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/pinning"
	"github.com/eduverse-labs/eduverse/src/viewing"
)

// EnsureWallet checks that the wallet can sign and is on the configured
// chain, switching it over if needed.
func EnsureWallet(ctx context.Context, wallet chain.Wallet, chainID int64) error {
	if !wallet.Connected() {
		return chain.ErrNotConnected
	}
	if wallet.ChainID() != chainID {
		if err := wallet.SwitchChain(ctx, chainID); err != nil {
			return err
		}
	}
	return nil
}

func connectChain(ctx context.Context, cfg config.ChainConfig) (*chain.Engine, *chain.StaticWallet, error) {
	wallet := chain.NewStaticWallet(cfg)
	if err := EnsureWallet(ctx, wallet, cfg.ChainID); err != nil {
		return nil, nil, err
	}
	return chain.NewEngine(cfg), wallet, nil
}

// openJournal returns a nil store when no database is configured. Callers
// that cannot work without one should use requireJournal.
func openJournal(ctx context.Context) (*journal.Store, func(), error) {
	pool, err := db.NewConnPool(ctx)
	if errors.Is(err, db.ErrNotConfigured) {
		return nil, func() {}, nil
	} else if err != nil {
		return nil, nil, err
	}
	return journal.NewStore(pool), pool.Close, nil
}

func requireJournal(ctx context.Context) (*journal.Store, func(), error) {
	store, closeFn, err := openJournal(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, oops.New(db.ErrNotConfigured, "set EDUVERSE_DB_HOST and EDUVERSE_DB_NAME to manage failed sections")
	}
	return store, closeFn, nil
}

func newViewer(ctx context.Context, engine *chain.Engine) (*viewing.LicenseResolver, *viewing.VideoResolver, error) {
	storage, err := pinning.NewS3Client(ctx, config.Config.Storage)
	if err != nil {
		return nil, nil, err
	}
	licenses := viewing.NewLicenseResolver(engine, config.Config.Viewing)
	videos := viewing.NewVideoResolver(storage, config.Config.Viewing, nil)
	return licenses, videos, nil
}

func parseCourseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, oops.New(err, "bad course id %q", s)
	}
	return id, nil
}

// DescribeError turns a failure from the creation flow into the text shown
// to the person running the command.
func DescribeError(err error) string {
	var mintErr *creation.MintError
	var uploadErr *creation.UploadError
	switch {
	case errors.As(err, &uploadErr):
		return uploadErr.Error()
	case errors.Is(err, creation.ErrPriceTooHigh):
		return err.Error()
	case errors.As(err, &mintErr):
		if mintErr.Class == chain.ClassInsufficientFunds || mintErr.Class == chain.ClassGeneric {
			return fmt.Sprintf("%s\n%v", mintErr.Class.UserMessage(), mintErr.Err)
		}
		return mintErr.Class.UserMessage()
	}
	return chain.Classify(err).UserMessage() + "\n" + err.Error()
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
