package downloader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/locator"
	"thumbfetch/internal/modules/persistence"

	"go.uber.org/zap"
)

var (
	ErrSiteUnavailable = errors.New("downloader: site unavailable")
	ErrFileUnavailable = errors.New("downloader: file unavailable")
)

// Options configures the HTTP clients used for downloads.
type Options struct {
	// Timeout bounds a whole request including the body. Zero leaves
	// requests bounded only by the transport defaults.
	Timeout time.Duration

	// PlainClient and SecureClient replace the built-in clients when set.
	PlainClient  *http.Client
	SecureClient *http.Client
}

// Executor performs one GET per locator and classifies the result.
type Executor struct {
	plain     *http.Client
	secure    *http.Client
	persister *persistence.FilePersister
	logger    *zap.Logger
}

// New creates an Executor writing into persister's directory.
func New(persister *persistence.FilePersister, logger *zap.Logger, opts Options) *Executor {
	e := &Executor{
		plain:     opts.PlainClient,
		secure:    opts.SecureClient,
		persister: persister,
		logger:    logger,
	}
	if e.plain == nil {
		e.plain = &http.Client{
			Transport: newTransport(nil),
			Timeout:   opts.Timeout,
		}
	}
	if e.secure == nil {
		e.secure = &http.Client{
			Transport: newTransport(&tls.Config{MinVersion: tls.VersionTLS12}),
			Timeout:   opts.Timeout,
		}
	}
	return e
}

func newTransport(tlsConfig *tls.Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsConfig
	return t
}

func (e *Executor) client(t locator.Transport) *http.Client {
	if t == locator.Secure {
		return e.secure
	}
	return e.plain
}

// Download fetches loc and writes it to <outputDir>/<recordID><ext>.
// It never retries; the returned Outcome is final.
func (e *Executor) Download(ctx context.Context, recordID string, loc *locator.Locator) models.Outcome {
	out := models.Outcome{RecordID: recordID, Locator: loc.Raw()}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return siteUnavailable(out, fmt.Errorf("create request: %v", err))
	}

	resp, err := e.client(loc.Transport()).Do(req)
	if err != nil {
		return siteUnavailable(out, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Kind = models.FailedFileUnavailable
		out.Err = fmt.Errorf("%w: status %d", ErrFileUnavailable, resp.StatusCode)
		return out
	}

	path, err := e.persister.Persist(recordID, loc.Ext(), resp.Body)
	if err != nil {
		if errors.Is(err, persistence.ErrWrite) {
			out.Kind = models.FailedFileUnavailable
			out.Err = fmt.Errorf("%w: %w", ErrFileUnavailable, err)
			return out
		}
		return siteUnavailable(out, fmt.Errorf("read body: %v", err))
	}

	e.logger.Debug("thumbnail stored",
		zap.String("record_id", recordID),
		zap.String("filepath", path),
		zap.String("transport", loc.Transport().String()),
		zap.Duration("duration", time.Since(start)))

	out.Kind = models.Success
	out.Path = path
	return out
}

func siteUnavailable(out models.Outcome, err error) models.Outcome {
	out.Kind = models.FailedSiteUnavailable
	out.Err = fmt.Errorf("%w: %v", ErrSiteUnavailable, err)
	return out
}
