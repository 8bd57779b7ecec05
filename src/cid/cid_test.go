package cid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleV0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		sampleV0:                                 sampleV0,
		"ipfs://" + sampleV0:                     sampleV0,
		"ipfs://ipfs/" + sampleV0:                sampleV0,
		"/ipfs/" + sampleV0:                      sampleV0,
		"https://ipfs.io/ipfs/" + sampleV0:       sampleV0,
		"https://ipfs.io/ipfs/" + sampleV0 + "?x": sampleV0,
		"  " + sampleV0 + "/  ":                  sampleV0,
		"ipfs://" + sampleV0 + "/video.mp4":      sampleV0 + "/video.mp4",
	}
	for in, expected := range cases {
		assert.Equal(t, expected, Normalize(in), in)
	}
	assert.Equal(t, sampleV0, Root(sampleV0+"/video.mp4"))
}

func TestValidate(t *testing.T) {
	assert.Nil(t, Validate("ipfs://"+sampleV0))
	assert.Error(t, Validate("not-a-cid"))
	assert.Error(t, Validate(NoContent))
	assert.Error(t, Validate(""))
}

func TestCompute(t *testing.T) {
	a, err := Compute([]byte("hello"))
	require.Nil(t, err)
	b, err := Compute([]byte("hello"))
	require.Nil(t, err)
	c, err := Compute([]byte("goodbye"))
	require.Nil(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "bafkrei", a[:7], "raw CIDv1 in base32")
	assert.Nil(t, Validate(a))
}
