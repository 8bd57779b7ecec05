package manifest

import (
	"math"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"gopkg.in/yaml.v3"
)

/*
A manifest describes a course to publish, for example:

	title: Intro to Solidity
	description: From zero to your first contract.
	price: "0.01"
	thumbnail: images/cover.png
	sections:
	  - title: Setup
	    duration: 10m
	    video: videos/setup.mp4
	  - title: Reading list
	    duration: 300

Paths are relative to the manifest file.
*/
type Manifest struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Price       string    `yaml:"price"`
	Thumbnail   string    `yaml:"thumbnail"`
	Sections    []Section `yaml:"sections"`
}

type Section struct {
	Title    string   `yaml:"title"`
	Duration Duration `yaml:"duration"`
	Video    string   `yaml:"video"`
}

// Duration accepts either a number of seconds or a Go duration string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if secs, err := strconv.ParseUint(node.Value, 10, 32); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return oops.New(err, "line %d: invalid duration %q", node.Line, node.Value)
	}
	if parsed < 0 || parsed/time.Second > math.MaxUint32 {
		return oops.New(nil, "line %d: duration %q is out of range", node.Line, node.Value)
	}
	d.Duration = parsed
	return nil
}

// Seconds clamps to the uint32 range so an oversized duration never wraps
// around into a valid one.
func (d Duration) Seconds() uint32 {
	secs := d.Duration / time.Second
	switch {
	case secs < 0:
		return 0
	case secs > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(secs)
}

func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, oops.New(err, "failed to parse manifest")
	}
	return m, nil
}

// Load reads a manifest and fills a fresh creation session from it. Every
// section goes through the same checks as one added by hand.
func Load(path string) (*creation.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.New(err, "failed to read manifest")
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return m.Session(filepath.Dir(path))
}

func (m Manifest) Session(baseDir string) (*creation.Session, error) {
	price, err := chain.ParseEther(m.Price)
	if err != nil {
		return nil, err
	}

	session := creation.NewSession()
	session.Form = creation.CourseForm{
		Title:       strings.TrimSpace(m.Title),
		Description: strings.TrimSpace(m.Description),
		Price:       price,
	}
	if m.Thumbnail != "" {
		thumb, err := localFile(baseDir, m.Thumbnail)
		if err != nil {
			return nil, err
		}
		session.Form.Thumbnail = &thumb
	}
	if err := creation.ValidateForm(session.Form); err != nil {
		return nil, err
	}

	for i, s := range m.Sections {
		var video *models.LocalFile
		if s.Video != "" {
			f, err := localFile(baseDir, s.Video)
			if err != nil {
				return nil, oops.New(err, "section %d", i+1)
			}
			video = &f
		}
		if err := session.AddSection(models.NewPendingSection(s.Title, s.Duration.Seconds(), video)); err != nil {
			return nil, oops.New(err, "section %d", i+1)
		}
	}
	return session, nil
}

func localFile(baseDir, path string) (models.LocalFile, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.LocalFile{}, oops.New(err, "cannot use %s", path)
	}
	if info.IsDir() {
		return models.LocalFile{}, oops.New(nil, "%s is a directory", path)
	}
	return models.LocalFile{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: ContentType(path),
		Size:        info.Size(),
	}, nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
