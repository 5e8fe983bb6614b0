package seed

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// maxSeedBytes caps the size of a downloaded seed file.
const maxSeedBytes = 32 << 20

// RemoteSource downloads a seed file over HTTP(S) or FTP. The format is taken
// from the URL path extension.
type RemoteSource struct {
	URL     string
	Sheet   string
	HTTP    *http.Client
	Timeout time.Duration
	Retry   resilience.Policy
}

// Load downloads, parses and validates the seed file.
func (s RemoteSource) Load(ctx context.Context) ([]model.Company, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: parse url %s", s.URL)
	}
	format, err := FormatFromPath(u.Path)
	if err != nil {
		return nil, err
	}

	retry := s.Retry
	if retry.Name == "" {
		retry = resilience.DefaultPolicy("seed")
	}
	data, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		switch u.Scheme {
		case "http", "https":
			return s.httpGet(ctx, u.String())
		case "ftp":
			return s.ftpGet(ctx, u)
		default:
			return nil, eris.Errorf("seed: unsupported url scheme %q", u.Scheme)
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "seed: download %s", s.URL)
	}

	zap.L().Info("seed: downloaded seed file", zap.String("url", u.Redacted()), zap.Int("bytes", len(data)))
	return Decode(data, format, s.Sheet)
}

func (s RemoteSource) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 30 * time.Second
}

func (s RemoteSource) httpGet(ctx context.Context, rawURL string) ([]byte, error) {
	hc := s.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: s.timeout()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "seed: create request")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("seed: http status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return readCapped(resp.Body)
}

func (s RemoteSource) ftpGet(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return nil, eris.New("seed: empty path in ftp url")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.timeout()), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "seed: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrap(err, "seed: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck
	return readCapped(resp)
}

func readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSeedBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "seed: read body")
	}
	if len(data) > maxSeedBytes {
		return nil, eris.Errorf("seed: file exceeds %d bytes", maxSeedBytes)
	}
	return data, nil
}
