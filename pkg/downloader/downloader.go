// Package downloader fetches ONNX models and their tokenizer sidecars from
// the HuggingFace Hub.
package downloader

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultAPIBase = "https://huggingface.co/api/models/"
	defaultCDNBase = "https://huggingface.co/"
)

// ModelSource fetches a model and its sidecar files into a destination
// directory.
type ModelSource interface {
	DownloadModel(modelID, destination string) (*DownloadResult, error)
}

// DownloadResult lists what a download produced on disk.
type DownloadResult struct {
	ModelPath      string
	TokenizerPaths []string
}

// Downloader runs downloads against a configured ModelSource.
type Downloader struct {
	source ModelSource
}

// NewDownloader creates a Downloader backed by the given source.
func NewDownloader(source ModelSource) *Downloader {
	return &Downloader{source: source}
}

// Download fetches the model and its sidecars into destination.
func (d *Downloader) Download(modelID, destination string) (*DownloadResult, error) {
	return d.source.DownloadModel(modelID, destination)
}

// HuggingFaceSource implements ModelSource for the HuggingFace Hub.
type HuggingFaceSource struct {
	client  *http.Client
	apiBase string
	cdnBase string
	token   string
}

// NewHuggingFaceSource returns a source for the HuggingFace Hub. A non-empty
// token is sent as a Bearer credential, which gated repositories require.
// HUGGINGFACE_API_URL and HUGGINGFACE_CDN_URL override the hub endpoints.
func NewHuggingFaceSource(token string) *HuggingFaceSource {
	s := &HuggingFaceSource{
		client:  &http.Client{},
		apiBase: defaultAPIBase,
		cdnBase: defaultCDNBase,
		token:   token,
	}
	if v := os.Getenv("HUGGINGFACE_API_URL"); v != "" {
		s.apiBase = v
	}
	if v := os.Getenv("HUGGINGFACE_CDN_URL"); v != "" {
		s.cdnBase = v
	}
	return s
}

// modelInfo is the slice of the hub's model-info response this package reads.
type modelInfo struct {
	ModelID  string `json:"modelId"`
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

// DownloadModel lists the repository, downloads every .onnx file and every
// tokenizer sidecar, and reports where they landed. Files keep their base
// name under destination regardless of where the repository nests them.
func (h *HuggingFaceSource) DownloadModel(modelID, destination string) (*DownloadResult, error) {
	info, err := h.fetchInfo(modelID)
	if err != nil {
		return nil, err
	}

	res := &DownloadResult{}
	for _, sib := range info.Siblings {
		name := sib.RFilename
		switch {
		case strings.HasSuffix(name, ".onnx"):
			path := filepath.Join(destination, filepath.Base(name))
			if err := h.fetchFile(modelID, name, path); err != nil {
				return nil, fmt.Errorf("downloading model %s: %w", name, err)
			}
			res.ModelPath = path
		case isTokenizerSidecar(name):
			path := filepath.Join(destination, filepath.Base(name))
			if err := h.fetchFile(modelID, name, path); err != nil {
				return nil, fmt.Errorf("downloading sidecar %s: %w", name, err)
			}
			res.TokenizerPaths = append(res.TokenizerPaths, path)
		}
	}
	if res.ModelPath == "" {
		return nil, fmt.Errorf("no ONNX model found for model ID: %s", modelID)
	}
	return res, nil
}

// isTokenizerSidecar decides which repository files ride along with the
// model. Tokenizer configs on the hub are JSON or plain-text vocabularies.
func isTokenizerSidecar(name string) bool {
	return strings.Contains(name, "tokenizer") ||
		strings.HasSuffix(name, ".json") ||
		strings.HasSuffix(name, ".txt")
}

func (h *HuggingFaceSource) fetchInfo(modelID string) (info *modelInfo, err error) {
	url := strings.TrimSuffix(h.apiBase, "/") + "/" + modelID
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching model info: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HuggingFace API returned non-OK status: %s", resp.Status)
	}
	info = &modelInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("decoding model info: %w", err)
	}
	return info, nil
}

func (h *HuggingFaceSource) fetchFile(modelID, rpath, dest string) (err error) {
	url := strings.TrimSuffix(h.cdnBase, "/") + "/" + modelID + "/resolve/main/" + rpath
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %s", url, resp.Status)
	}
	return saveTo(resp.Body, dest)
}

func (h *HuggingFaceSource) authorize(req *http.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

// saveTo streams r into a file at path, creating parent directories.
func saveTo(r io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
