/*
Copyright © 2018 the HydroMet authors.
This file is part of HydroMet.

HydroMet is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMet is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMet.  If not, see <http://www.gnu.org/licenses/>.
*/

package hydrometutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hydromet"
)

// maxDownloadRetries is the number of times a failed HTTP download is
// retried.
const maxDownloadRetries = 5

// stager copies remote input files into a local temporary directory.
type stager struct {
	log    logrus.FieldLogger
	client *http.Client

	// newBackOff returns the retry policy for HTTP downloads.
	newBackOff func() backoff.BackOff

	dir string
	n   int
}

func newStager(log logrus.FieldLogger) *stager {
	return &stager{
		log:    log,
		client: http.DefaultClient,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadRetries)
		},
	}
}

// IsRemote returns whether path refers to a URL or blob storage.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || IsBlob(path)
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// newDir returns a new empty subdirectory of the staging directory.
func (s *stager) newDir() (string, error) {
	if s.dir == "" {
		var err error
		if s.dir, err = ioutil.TempDir("", "hydromet"); err != nil {
			return "", fmt.Errorf("hydromet: creating temporary download directory: %v", err)
		}
	}
	s.n++
	d := filepath.Join(s.dir, strconv.Itoa(s.n))
	if err := os.Mkdir(d, 0755); err != nil {
		return "", fmt.Errorf("hydromet: creating temporary download directory: %v", err)
	}
	return d, nil
}

// maybeDownload checks whether path is an existing local file. If it is
// not and path is a URL or blob location, the file is downloaded and the
// path to the local copy is returned.
func (s *stager) maybeDownload(ctx context.Context, path string) (string, error) {
	if path == "" || !IsRemote(path) {
		return path, nil
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	dir, err := s.newDir()
	if err != nil {
		return "", err
	}
	return s.download(ctx, path, dir)
}

// download copies path into dir and returns the local file name.
func (s *stager) download(ctx context.Context, path, dir string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("hydromet: parsing location %s: %v", path, err)
	}
	dst := filepath.Join(dir, filepath.Base(u.Path))
	start := time.Now()
	if IsBlob(path) {
		err = s.downloadBlob(ctx, u, dst)
	} else {
		err = s.downloadHTTP(ctx, path, dst)
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	s.log.WithFields(logrus.Fields{
		"source":   path,
		"file":     dst,
		"duration": time.Since(start).String(),
	}).Info("downloaded input")
	return dst, nil
}

// stageSource downloads the files of a remote forcing source. For
// sources with one file per year, the file of each year in years is
// downloaded.
func (s *stager) stageSource(ctx context.Context, src hydromet.Source, years []int) (hydromet.Source, error) {
	if !IsRemote(src.File) {
		return src, nil
	}
	if !src.PerYear {
		f, err := s.maybeDownload(ctx, src.File)
		if err != nil {
			return src, err
		}
		src.File = f
		return src, nil
	}
	dir, err := s.newDir()
	if err != nil {
		return src, err
	}
	for _, y := range years {
		f := strings.Replace(src.File, "[YEAR]", strconv.Itoa(y), -1)
		if _, err := s.download(ctx, f, dir); err != nil {
			return src, err
		}
	}
	// Downloaded files keep their base names, so the template still
	// applies locally.
	src.File = filepath.Join(dir, filepath.Base(src.File))
	return src, nil
}

// downloadHTTP downloads a file from the specified URL, retrying
// server and connection errors.
func (s *stager) downloadHTTP(ctx context.Context, path, dst string) error {
	var permanent error
	op := func() error {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			permanent = err
			return nil
		}
		resp, err := s.client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("status %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			permanent = fmt.Errorf("hydromet: downloading %s: status %s", path, resp.Status)
			return nil
		}
		w, err := os.Create(dst)
		if err != nil {
			permanent = fmt.Errorf("hydromet: creating file for download: %v", err)
			return nil
		}
		if _, err = io.Copy(w, resp.Body); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
	err := backoff.RetryNotify(
		op,
		backoff.WithContext(s.newBackOff(), ctx),
		func(err error, d time.Duration) {
			s.log.WithFields(logrus.Fields{
				"url":   path,
				"retry": d.String(),
			}).Warnf("download failed: %v", err)
		},
	)
	if err != nil {
		return fmt.Errorf("hydromet: downloading %s: %v", path, err)
	}
	return permanent
}

// downloadBlob downloads the specified file from blob storage.
func (s *stager) downloadBlob(ctx context.Context, u *url.URL, dst string) error {
	bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return err
	}
	r, err := bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return fmt.Errorf("hydromet: reading %s: %v", u, err)
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("hydromet: creating file for download: %v", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("hydromet: downloading %s: %v", u, err)
	}
	return w.Close()
}

// cleanup removes the downloaded files.
func (s *stager) cleanup() error {
	if s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// Even if name contains subdirectories, only the base directory name will be
// used when opening the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("hydromet: opening bucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("hydromet: invalid storage provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s := session.Must(session.NewSession(c))
	return s3blob.OpenBucket(ctx, s, name)
}

// uploader holds output files in a local directory when the output
// location is in blob storage, and copies them there after the run.
type uploader struct {
	// remote is the blob storage output location, or empty if output
	// is written locally.
	remote string
	dir    string
}

// maybeUpload returns the local directory that output for outputDir
// should be written to.
func (u *uploader) maybeUpload(outputDir string) (string, error) {
	if !IsBlob(outputDir) {
		return outputDir, nil
	}
	u.remote = strings.TrimSuffix(outputDir, "/")
	var err error
	if u.dir, err = ioutil.TempDir("", "hydromet_output"); err != nil {
		return "", fmt.Errorf("hydromet: creating temporary output directory: %v", err)
	}
	return u.dir, nil
}

// uploadOutput copies the given local files to the remote output
// location and returns their remote paths. It does nothing if the output
// location is local.
func (u *uploader) uploadOutput(ctx context.Context, files []string) ([]string, error) {
	if u.remote == "" {
		return files, nil
	}
	loc, err := url.Parse(u.remote)
	if err != nil {
		return nil, fmt.Errorf("hydromet: parsing url '%s' for upload: %s", u.remote, err)
	}
	bucket, err := OpenBucket(ctx, loc.Scheme+"://"+loc.Host)
	if err != nil {
		return nil, fmt.Errorf("hydromet: opening bucket to upload output: %s", err)
	}
	prefix := strings.TrimPrefix(loc.Path, "/")
	remote := make([]string, len(files))
	for i, f := range files {
		key := filepath.Base(f)
		if prefix != "" {
			key = prefix + "/" + key
		}
		if err := upload(ctx, bucket, f, key); err != nil {
			return nil, err
		}
		remote[i] = loc.Scheme + "://" + loc.Host + "/" + key
	}
	return remote, os.RemoveAll(u.dir)
}

func upload(ctx context.Context, bucket *blob.Bucket, file, key string) error {
	r, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("hydromet: opening file '%s' for upload: %s", file, err)
	}
	defer r.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("hydromet: opening writer to upload file '%s': %s", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("hydromet: uploading file '%s' to '%s': %s", file, key, err)
	}
	return w.Close()
}
