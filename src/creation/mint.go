package creation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
)

var ErrPriceTooHigh = errors.New("price is above the platform maximum")

type CourseContract interface {
	CreateCourse(ctx context.Context, title, description, thumbnailCID string, pricePerPeriod *big.Int) (models.MintedCourse, error)
}

type PriceOracle interface {
	MaxPrice(ctx context.Context) (*big.Int, error)
}

// MintError is a failed contract write, with the class that decides what
// the person sees.
type MintError struct {
	Class chain.ErrorClass
	Err   error
}

func (e *MintError) Error() string {
	return fmt.Sprintf("%s (%v)", e.Class.UserMessage(), e.Err)
}

func (e *MintError) Unwrap() error {
	return e.Err
}

func NewMintError(err error) *MintError {
	return &MintError{Class: chain.Classify(err), Err: err}
}

type CourseMinter struct {
	Contract CourseContract
	Oracle   PriceOracle

	mu       sync.Mutex
	maxPrice *big.Int
}

// MaxPrice reads the price ceiling once and remembers it for the rest of
// the session.
func (m *CourseMinter) MaxPrice(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPrice != nil {
		return m.maxPrice, nil
	}
	if m.Oracle == nil {
		return nil, nil
	}
	max, err := m.Oracle.MaxPrice(ctx)
	if err != nil {
		return nil, err
	}
	m.maxPrice = max
	return max, nil
}

func (m *CourseMinter) CheckPrice(ctx context.Context, price *big.Int) error {
	if price == nil || price.Sign() == 0 {
		return nil
	}

	max, err := m.MaxPrice(ctx)
	if err != nil {
		// The contract enforces the real limit, so an unreadable ceiling
		// only costs us the early check.
		logging.ExtractLogger(ctx).Warn().Err(err).Msg("could not read maximum price, skipping check")
		return nil
	}
	if max != nil && price.Cmp(max) > 0 {
		return oops.New(ErrPriceTooHigh, "%s ETH is more than the maximum of %s ETH", chain.FormatEther(price), chain.FormatEther(max))
	}
	return nil
}

func (m *CourseMinter) Mint(ctx context.Context, form CourseForm, thumbnailCID string) (models.MintedCourse, error) {
	if err := m.CheckPrice(ctx, form.Price); err != nil {
		return models.MintedCourse{}, err
	}

	price := form.Price
	if price == nil {
		price = new(big.Int)
	}
	minted, err := m.Contract.CreateCourse(ctx, form.Title, form.Description, thumbnailCID, price)
	if err != nil {
		return models.MintedCourse{}, NewMintError(err)
	}

	logging.ExtractLogger(ctx).Info().Uint64("courseId", minted.ID).Str("tx", minted.TxHash).Msg("course minted")
	return minted, nil
}
