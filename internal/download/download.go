// Package download fetches driver archives over HTTP, from Google Cloud
// Storage buckets or from GitHub releases, verifies them and unpacks them.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"github.com/google/go-github/v27/github"
	"google.golang.org/api/option"
)

// File describes how to download a file from the Web.
type File struct {
	URL  string
	Name string
	// Hash is the hex digest to verify, if known.
	Hash     string
	HashType string // default is sha256
}

// Path is where the file is stored inside directory.
func (f File) Path(directory string) string {
	return filepath.Join(directory, f.Name)
}

func newHash(hashType string) hash.Hash {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	}
	return sha256.New()
}

// Download fetches file into directory unless a copy with the same hash is
// already there.
func Download(ctx context.Context, client *http.Client, file File, directory string) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return err
	}
	if file.Hash != "" && fileSameHash(file, directory) {
		glog.Infof("Skipping file %q which has already been downloaded.", file.Name)
		return nil
	}
	glog.Infof("Downloading %q from %q", file.Name, file.URL)
	return downloadFile(ctx, client, file, directory)
}

func downloadFile(ctx context.Context, client *http.Client, file File, directory string) (err error) {
	path := file.Path(directory)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %q: %v", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing %q: %v", path, closeErr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: error downloading %q: %s", file.Name, file.URL, resp.Status)
	}

	if file.Hash == "" {
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
		}
		return nil
	}

	h := newHash(file.HashType)
	if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
		return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.URL, err)
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != file.Hash {
		return fmt.Errorf("%s: got %s hash %q, want %q", file.Name, file.HashType, sum, file.Hash)
	}
	return nil
}

func fileSameHash(file File, directory string) bool {
	f, err := os.Open(file.Path(directory))
	if err != nil {
		return false
	}
	defer f.Close()

	h := newHash(file.HashType)
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if sum != file.Hash {
		glog.Warningf("File %q: got hash %q, expect hash %q", file.Name, sum, file.Hash)
		return false
	}
	return true
}

// Bucket reads objects from a public Cloud Storage bucket.
type Bucket interface {
	// ReadObject returns the contents of a small object.
	ReadObject(ctx context.Context, object string) ([]byte, error)
	// ObjectFile describes how to download object, with its MD5 for
	// verification.
	ObjectFile(ctx context.Context, object string) (File, error)
	// Close releases the connection to the bucket.
	Close() error
}

type gcsBucket struct {
	name   string
	client *storage.Client
	bkt    *storage.BucketHandle
}

// NewGCSBucket opens a public bucket without credentials. The caller must
// Close it.
func NewGCSBucket(ctx context.Context, client *http.Client, name string) (Bucket, error) {
	c, err := storage.NewClient(ctx, option.WithHTTPClient(client), option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("cannot create a storage client for gs://%s: %v", name, err)
	}
	return &gcsBucket{name: name, client: c, bkt: c.Bucket(name)}, nil
}

func (b *gcsBucket) Close() error {
	return b.client.Close()
}

func (b *gcsBucket) ReadObject(ctx context.Context, object string) ([]byte, error) {
	r, err := b.bkt.Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create a reader for gs://%s/%s: %v", b.name, object, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read from gs://%s/%s: %v", b.name, object, err)
	}
	return data, nil
}

func (b *gcsBucket) ObjectFile(ctx context.Context, object string) (File, error) {
	attrs, err := b.bkt.Object(object).Attrs(ctx)
	if err != nil {
		return File{}, fmt.Errorf("cannot get gs://%s/%s attrs: %v", b.name, object, err)
	}
	f := File{
		URL:  attrs.MediaLink,
		Name: filepath.Base(object),
	}
	if len(attrs.MD5) > 0 {
		f.Hash = hex.EncodeToString(attrs.MD5)
		f.HashType = "md5"
	}
	return f, nil
}

// LatestGitHubRelease finds the asset matching assetName in the latest
// release of owner/repo. It returns the file and the release tag.
func LatestGitHubRelease(ctx context.Context, client *github.Client, owner, repo, assetName string) (File, string, error) {
	assetNameRE, err := regexp.Compile(assetName)
	if err != nil {
		return File{}, "", fmt.Errorf("invalid asset name regular expression %q: %s", assetName, err)
	}
	rel, _, err := client.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return File{}, "", err
	}
	for _, a := range rel.Assets {
		if !assetNameRE.MatchString(a.GetName()) {
			continue
		}
		u := a.GetBrowserDownloadURL()
		if u == "" {
			return File{}, "", fmt.Errorf("%s does not have a download URL", a.GetName())
		}
		return File{Name: a.GetName(), URL: u}, rel.GetTagName(), nil
	}
	return File{}, "", fmt.Errorf("release for %s not found at https://github.com/%s/%s/releases", assetName, owner, repo)
}
