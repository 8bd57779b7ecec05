package creation

import (
	"context"
	"fmt"
	"time"

	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/pinning"
	"github.com/eduverse-labs/eduverse/src/queue"
	"github.com/eduverse-labs/eduverse/src/utils"
)

// ThumbnailSlot is the UploadResult key for the course thumbnail. Sections
// are keyed by their local id.
const ThumbnailSlot = "thumbnail"

type Storage interface {
	UploadFile(ctx context.Context, file models.LocalFile, meta map[string]string) (pinning.UploadResult, error)
	UploadVideo(ctx context.Context, file models.LocalFile, meta map[string]string) (pinning.UploadResult, error)
}

type UploadItem struct {
	Slot  string
	Label string
	File  models.LocalFile
	Video bool
}

// UploadResult maps an upload slot to the content identifier it got.
type UploadResult map[string]string

func (r UploadResult) Thumbnail() string {
	return r[ThumbnailSlot]
}

type UploadError struct {
	Item UploadItem
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s (%s): %v", e.Item.Label, e.Item.File.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type ProgressFunc func(done, total int, item UploadItem)

type Uploader struct {
	Storage  Storage
	Queue    *queue.Serial
	Progress ProgressFunc
}

func NewUploader(storage Storage, delay time.Duration) *Uploader {
	return &Uploader{
		Storage: storage,
		Queue:   queue.NewSerial(delay),
	}
}

// BuildWorkList lists what needs uploading: the thumbnail first, then every
// section that has a video, in pending order.
func BuildWorkList(form CourseForm, sections []models.PendingSection) ([]UploadItem, error) {
	if form.Thumbnail == nil {
		return nil, ErrNoThumbnail
	}

	items := []UploadItem{{
		Slot:  ThumbnailSlot,
		Label: "thumbnail",
		File:  *form.Thumbnail,
	}}
	for _, s := range sections {
		if s.Video == nil {
			continue
		}
		items = append(items, UploadItem{
			Slot:  s.LocalID.String(),
			Label: fmt.Sprintf("section %q", s.Title),
			File:  *s.Video,
			Video: true,
		})
	}
	return items, nil
}

// Upload pins every item in the work list, one at a time. The first failure
// ends the whole phase.
func (u *Uploader) Upload(ctx context.Context, form CourseForm, sections []models.PendingSection) (UploadResult, error) {
	ctx, log := logging.WithModule(ctx, "uploader")

	items, err := BuildWorkList(form, sections)
	if err != nil {
		return nil, err
	}

	result := make(UploadResult, len(items))
	_, err = u.Queue.Each(ctx, len(items), func(ctx context.Context, i int) error {
		item := items[i]
		meta := map[string]string{
			"course": form.Title,
			"slot":   item.Slot,
		}

		log.Info().Str("item", item.Label).Int("index", i+1).Int("total", len(items)).Msg("uploading")

		upload := u.Storage.UploadFile
		if item.Video {
			upload = u.Storage.UploadVideo
		}
		res, err := upload(ctx, item.File, meta)
		if err != nil {
			return &UploadError{Item: item, Err: err}
		}
		result[item.Slot] = res.CID

		log.Info().Str("item", item.Label).Str("cid", res.CID).Int("percent", utils.Percent(i+1, len(items))).Msg("uploaded")
		if u.Progress != nil {
			u.Progress(i+1, len(items), item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
