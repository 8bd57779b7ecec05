package perf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunPerf(t *testing.T) {
	rp := MakeNewRunPerf("create course")

	upload := rp.StartBlock("upload", "thumbnail.png")
	time.Sleep(5 * time.Millisecond)
	upload.End()

	rp.StartBlock("mint", "createCourse")
	rp.Checkpoint("mint", "course id 7")
	rp.EndRun()

	if assert.Len(t, rp.Blocks, 3) {
		assert.GreaterOrEqual(t, rp.Blocks[0].Duration(), 5*time.Millisecond)
		assert.False(t, rp.Blocks[1].End.IsZero(), "EndRun should close open blocks")
		assert.Equal(t, time.Duration(0), rp.Blocks[2].Duration())
	}

	var out bytes.Buffer
	rp.Report(&out)
	assert.Contains(t, out.String(), "create course")
	assert.Contains(t, out.String(), "thumbnail.png")
}

func TestPerfContext(t *testing.T) {
	assert.Nil(t, ExtractPerf(context.Background()))
	assert.Nil(t, ExtractPerf(context.Background()).StartBlock("sql", "noop"))

	rp := MakeNewRunPerf("run")
	ctx := AttachPerf(context.Background(), rp)
	ExtractPerf(ctx).StartBlock("sql", "insert").End()
	assert.Len(t, rp.Blocks, 1)
}
