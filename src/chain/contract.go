package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/utils"
)

// Uint accepts uint256 values however the engine chooses to encode them,
// as a JSON string or a JSON number.
type Uint struct {
	big.Int
}

func (u *Uint) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		u.SetInt64(0)
		return nil
	}
	base := 10
	if bytes.HasPrefix(data, []byte("0x")) {
		base = 0
	}
	if _, ok := u.SetString(string(data), base); !ok {
		return oops.New(nil, "invalid integer %q", string(data))
	}
	return nil
}

func (u *Uint) Uint64() uint64 {
	return u.Int.Uint64()
}

func (u *Uint) Time() time.Time {
	if u.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(u.Int64(), 0).UTC()
}

type courseResult struct {
	ID            Uint   `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ThumbnailCID  string `json:"thumbnailCID"`
	PricePerMonth Uint   `json:"pricePerMonth"`
	Creator       string `json:"creator"`
	CreatedAt     Uint   `json:"createdAt"`
	IsActive      bool   `json:"isActive"`
}

type sectionResult struct {
	ID         Uint   `json:"id"`
	CourseID   Uint   `json:"courseId"`
	Title      string `json:"title"`
	ContentCID string `json:"contentCID"`
	Duration   Uint   `json:"duration"`
	OrderID    Uint   `json:"orderId"`
}

type licenseResult struct {
	CourseID        Uint   `json:"courseId"`
	Student         string `json:"student"`
	ExpiryTimestamp Uint   `json:"expiryTimestamp"`
	IsActive        bool   `json:"isActive"`
}

type progressResult struct {
	CompletedSections  Uint   `json:"completedSections"`
	TotalSections      Uint   `json:"totalSections"`
	ProgressPercentage Uint   `json:"progressPercentage"`
	SectionsCompleted  []bool `json:"sectionsCompleted"`
}

func idArg(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func (e *Engine) GetCourse(ctx context.Context, courseID uint64) (models.Course, error) {
	var res courseResult
	if err := e.Read(ctx, "getCourse", []string{idArg(courseID)}, &res); err != nil {
		return models.Course{}, err
	}
	return models.Course{
		ID:             utils.OrDefault(res.ID.Uint64(), courseID),
		Title:          res.Title,
		Description:    res.Description,
		ThumbnailCID:   res.ThumbnailCID,
		PricePerPeriod: new(big.Int).Set(&res.PricePerMonth.Int),
		Creator:        res.Creator,
		CreatedAt:      res.CreatedAt.Time(),
		IsActive:       res.IsActive,
	}, nil
}

func (e *Engine) GetCourseSections(ctx context.Context, courseID uint64) ([]models.Section, error) {
	var res []sectionResult
	if err := e.Read(ctx, "getCourseSections", []string{idArg(courseID)}, &res); err != nil {
		return nil, err
	}
	sections := make([]models.Section, len(res))
	for i, s := range res {
		order := int(s.OrderID.Int64())
		if s.OrderID.Sign() == 0 {
			order = i
		}
		sections[i] = models.Section{
			ID:              models.SectionID(courseID, order),
			CourseID:        courseID,
			Title:           s.Title,
			DurationSeconds: uint32(s.Duration.Uint64()),
			ContentCID:      s.ContentCID,
			OrderIndex:      order,
		}
	}
	return sections, nil
}

func (e *Engine) HasValidLicense(ctx context.Context, holder string, courseID uint64) (bool, error) {
	var valid bool
	err := e.Read(ctx, "hasValidLicense", []string{holder, idArg(courseID)}, &valid)
	return valid, err
}

func (e *Engine) GetLicense(ctx context.Context, holder string, courseID uint64) (models.License, error) {
	var res licenseResult
	if err := e.Read(ctx, "getLicense", []string{holder, idArg(courseID)}, &res); err != nil {
		return models.License{}, err
	}
	return models.License{
		Holder:    utils.OrDefault(res.Student, holder),
		CourseID:  courseID,
		ExpiresAt: res.ExpiryTimestamp.Time(),
	}, nil
}

func (e *Engine) GetUserProgress(ctx context.Context, holder string, courseID uint64) (models.Progress, error) {
	var res progressResult
	if err := e.Read(ctx, "getUserProgress", []string{holder, idArg(courseID)}, &res); err != nil {
		return models.Progress{}, err
	}

	done := int(res.CompletedSections.Int64())
	total := int(res.TotalSections.Int64())
	pct := int(res.ProgressPercentage.Int64())
	if pct == 0 && done > 0 {
		pct = utils.Percent(done, total)
	}
	completed := res.SectionsCompleted
	if completed == nil {
		completed = []bool{}
	}
	return models.Progress{
		Holder:            holder,
		CourseID:          courseID,
		CompletedSections: done,
		TotalSections:     total,
		Percentage:        pct,
		Completed:         completed,
	}, nil
}

// MaxPrice is the platform's upper bound on a course's price per period,
// in wei. It is advisory; the contract enforces the real limit.
func (e *Engine) MaxPrice(ctx context.Context) (*big.Int, error) {
	var res Uint
	if err := e.Read(ctx, "maxPriceInETH", nil, &res); err != nil {
		return nil, err
	}
	return new(big.Int).Set(&res.Int), nil
}

func decodeReturnedID(name string, receipt Receipt) (uint64, error) {
	raw := bytes.TrimSpace(receipt.ReturnValue)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return 0, oops.New(nil, "%s was mined (%s) but returned no id", name, receipt.TxHash)
	}
	var id Uint
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, oops.New(err, "failed to decode id returned by %s", name)
	}
	return id.Uint64(), nil
}

func (e *Engine) CreateCourse(ctx context.Context, title, description, thumbnailCID string, pricePerPeriod *big.Int) (models.MintedCourse, error) {
	price := "0"
	if pricePerPeriod != nil {
		price = pricePerPeriod.String()
	}
	receipt, err := e.Write(ctx, "createCourse", []string{title, description, thumbnailCID, price})
	if err != nil {
		return models.MintedCourse{}, err
	}
	id, err := decodeReturnedID("createCourse", receipt)
	if err != nil {
		return models.MintedCourse{}, err
	}
	return models.MintedCourse{ID: id, TxHash: receipt.TxHash}, nil
}

func (e *Engine) AddCourseSection(ctx context.Context, courseID uint64, title, contentCID string, durationSeconds uint32) (models.MintedSection, error) {
	receipt, err := e.Write(ctx, "addCourseSection", []string{
		idArg(courseID),
		title,
		contentCID,
		strconv.FormatUint(uint64(durationSeconds), 10),
	})
	if err != nil {
		return models.MintedSection{}, err
	}
	index, err := decodeReturnedID("addCourseSection", receipt)
	if err != nil {
		return models.MintedSection{}, err
	}
	return models.MintedSection{ID: models.SectionID(courseID, int(index)), TxHash: receipt.TxHash}, nil
}

func (e *Engine) CompleteSection(ctx context.Context, courseID uint64, sectionIndex int) (string, error) {
	receipt, err := e.Write(ctx, "completeSection", []string{idArg(courseID), strconv.Itoa(sectionIndex)})
	if err != nil {
		return "", err
	}
	return receipt.TxHash, nil
}
