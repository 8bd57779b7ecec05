package devpin

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/jobs"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/rs/zerolog"
)

/*
A tiny stand-in for an S3-compatible pinning service, for local development.
Objects are stored in a folder on disk. Every PUT computes the CID of the
body and reports it through the "cid" user metadata, and the same server
answers /ipfs/{cid} so it can be used as the dedicated gateway too.
*/

const gatewayDir = "_ipfs"

type Server struct {
	Folder string
	logger zerolog.Logger
}

type objectMeta struct {
	CID         string            `json:"cid"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata"`
	Modified    time.Time         `json:"modified"`
}

func NewServer(folder string) (*Server, error) {
	if err := os.MkdirAll(filepath.Join(folder, gatewayDir), fs.ModePerm); err != nil {
		return nil, oops.New(err, "failed to create devpin folder")
	}
	return &Server{
		Folder: folder,
		logger: logging.With().Str("module", "devpin").Logger(),
	}, nil
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

		if rest, ok := strings.CutPrefix(r.URL.Path, "/ipfs/"); ok {
			s.serveGateway(w, r, rest)
			return
		}

		bucket, key := bucketKey(r)
		if bucket == "" {
			writeError(w, http.StatusBadRequest, "InvalidBucketName", "no bucket in path")
			return
		}
		if bucket == gatewayDir || bucket == "." || bucket == ".." {
			writeError(w, http.StatusBadRequest, "InvalidBucketName", fmt.Sprintf("%q is reserved", bucket))
			return
		}

		switch r.Method {
		case http.MethodPut:
			if key == "" {
				s.createBucket(w, bucket)
			} else {
				s.putObject(w, r, bucket, key)
			}
		case http.MethodHead, http.MethodGet:
			s.getObject(w, r, bucket, key)
		default:
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", fmt.Sprintf("%s is not supported", r.Method))
		}
	})
}

// StartServer runs the devpin server in the background until the returned
// job is canceled.
func StartServer(cfg config.DevPinConfig) (*jobs.Job, error) {
	srv, err := NewServer(cfg.Folder)
	if err != nil {
		return nil, err
	}

	job := jobs.New("devpin")
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}
	go func() {
		<-job.Canceled()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	job.Logger.Info().Str("addr", cfg.Addr).Str("folder", cfg.Folder).Msg("serving devpin")
	job.Go(func(ctx context.Context) error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return oops.New(err, "devpin shut down unexpectedly")
		}
		return nil
	})
	return job, nil
}

func bucketKey(r *http.Request) (string, string) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	return bucket, strings.ReplaceAll(key, "/", "~")
}

func (s *Server) bucketPath(bucket string) string {
	return filepath.Join(s.Folder, filepath.Base(bucket))
}

func (s *Server) createBucket(w http.ResponseWriter, bucket string) {
	if err := os.MkdirAll(s.bucketPath(bucket), fs.ModePerm); err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	dir := s.bucketPath(bucket)
	if _, err := os.Stat(dir); err != nil {
		writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}

	contentID, err := cid.Compute(body)
	if err != nil {
		s.internalError(w, err)
		return
	}

	meta := objectMeta{
		CID:         contentID,
		ContentType: r.Header.Get("Content-Type"),
		Size:        int64(len(body)),
		Metadata:    map[string]string{},
		Modified:    time.Now().UTC(),
	}
	for name, values := range r.Header {
		if metaName, ok := strings.CutPrefix(strings.ToLower(name), "x-amz-meta-"); ok && len(values) > 0 {
			meta.Metadata[metaName] = values[0]
		}
	}
	meta.Metadata[cidMetaName] = contentID

	objectPath := filepath.Join(dir, filepath.Base(key))
	if err := writeWithMeta(objectPath, body, meta); err != nil {
		s.internalError(w, err)
		return
	}
	if err := writeWithMeta(filepath.Join(s.Folder, gatewayDir, contentID), body, meta); err != nil {
		s.internalError(w, err)
		return
	}

	s.logger.Info().Str("bucket", bucket).Str("key", key).Str("cid", contentID).Int64("size", meta.Size).Msg("pinned")
	w.Header().Set("ETag", strconv.Quote(contentID))
	w.Header().Set("x-amz-meta-"+cidMetaName, contentID)
	w.WriteHeader(http.StatusOK)
}

const cidMetaName = "cid"

func (s *Server) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if key == "" {
		if _, err := os.Stat(s.bucketPath(bucket)); err != nil {
			writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	objectPath := filepath.Join(s.bucketPath(bucket), filepath.Base(key))
	meta, err := readMeta(objectPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist")
		return
	}
	for name, value := range meta.Metadata {
		w.Header().Set("x-amz-meta-"+name, value)
	}
	s.serveContent(w, r, objectPath, meta)
}

func (s *Server) serveGateway(w http.ResponseWriter, r *http.Request, rest string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	root := cid.Root(cid.Normalize(rest))
	if err := cid.Validate(root); err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}

	contentPath := filepath.Join(s.Folder, gatewayDir, root)
	meta, err := readMeta(contentPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.serveContent(w, r, contentPath, meta)
}

func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, path string, meta objectMeta) {
	f, err := os.Open(path)
	if err != nil {
		s.internalError(w, err)
		return
	}
	defer f.Close()

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("ETag", strconv.Quote(meta.CID))
	http.ServeContent(w, r, "", meta.Modified, f)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("devpin request failed")
	writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
}

func writeWithMeta(path string, body []byte, meta objectMeta) error {
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return oops.New(err, "failed to write %s", path)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return oops.New(err, "failed to encode metadata")
	}
	if err := os.WriteFile(path+".meta.json", metaBytes, 0o644); err != nil {
		return oops.New(err, "failed to write metadata for %s", path)
	}
	return nil
}

func readMeta(path string) (objectMeta, error) {
	var meta objectMeta
	metaBytes, err := os.ReadFile(path + ".meta.json")
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(metaBytes, &meta)
	return meta, err
}

type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	xml.NewEncoder(&buf).Encode(s3Error{Code: code, Message: message})

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
