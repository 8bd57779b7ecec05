package models

import (
	"math/big"
	"time"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxSectionDuration   = 86400 // seconds
	MaxPendingSections   = 50
)

type Course struct {
	ID             uint64
	Title          string
	Description    string
	ThumbnailCID   string
	PricePerPeriod *big.Int // wei; zero means free
	Creator        string
	CreatedAt      time.Time
	IsActive       bool
}

func (c *Course) IsFree() bool {
	return c.PricePerPeriod == nil || c.PricePerPeriod.Sign() == 0
}

type MintedCourse struct {
	ID     uint64
	TxHash string
}
