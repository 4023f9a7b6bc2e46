package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/driftbyte/pixvault/backend/internal/imaging"
	"github.com/driftbyte/pixvault/backend/internal/storage"
	"github.com/driftbyte/pixvault/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingHashIndex      = errors.New("vault: hash index is required")
	errMissingUserStore      = errors.New("vault: user store is required")
	errMissingCompactBackend = errors.New("vault: compact backend is required")
	errMissingGeneralBackend = errors.New("vault: general backend is required")
)

// acceptedExtensions gates uploads on the original filename's extension,
// independent of the actual decoded format.
var acceptedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
}

// Image is one gallery entry: the canonical filename and its public URL.
type Image struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// ServiceConfig describes the dependencies for the upload coordinator.
type ServiceConfig struct {
	HashIndex store.HashIndex
	Users     store.UserStore
	Compact   storage.Backend
	General   storage.Backend
	// Probe issues the reconciliation GETs. Defaults to http.DefaultClient.
	Probe       *http.Client
	JPEGQuality int
	Logger      *zap.Logger
}

// Service coordinates hashing, dedup lookup, normalization, backend
// selection, persistence, and ledger bookkeeping.
type Service struct {
	hashes  store.HashIndex
	users   store.UserStore
	compact storage.Backend
	general storage.Backend
	probe   *http.Client
	quality int
	logger  *zap.Logger
	locks   *userLocks
}

// NewService validates the configuration and constructs the coordinator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.HashIndex == nil {
		return nil, errMissingHashIndex
	}
	if cfg.Users == nil {
		return nil, errMissingUserStore
	}
	if cfg.Compact == nil {
		return nil, errMissingCompactBackend
	}
	if cfg.General == nil {
		return nil, errMissingGeneralBackend
	}

	probe := cfg.Probe
	if probe == nil {
		probe = http.DefaultClient
	}
	quality := cfg.JPEGQuality
	if quality <= 0 {
		quality = imaging.DefaultQuality
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		hashes:  cfg.HashIndex,
		users:   cfg.Users,
		compact: cfg.Compact,
		general: cfg.General,
		probe:   probe,
		quality: quality,
		logger:  logger,
		locks:   newUserLocks(),
	}, nil
}

// Authenticate checks a username/password pair. An unknown alphanumeric
// username registers a new account with the supplied password; a wrong
// password on an existing account fails without mutating anything. The
// boolean surface cannot distinguish the two cases, which is the deployed
// behavior this service preserves.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if !isAlphanumeric(username) {
		return false, nil
	}

	hashed := hashPassword(password)

	account, err := s.users.Find(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		err = s.users.Create(ctx, store.UserAccount{
			Username:     username,
			PasswordHash: hashed,
			Uploads:      []store.UploadRecord{},
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a concurrent first-login race. Validate against the
			// account that won.
			account, err = s.users.Find(ctx, username)
			if err != nil {
				return false, err
			}
			return account.PasswordHash == hashed, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return account.PasswordHash == hashed, nil
}

// UploadImage runs one upload to completion. Expected failures (bad
// extension, undecodable or oversize image, backend save failure) are
// reported as outcomes; the error return is reserved for store faults.
func (s *Service) UploadImage(ctx context.Context, username string, data []byte, filename string) (Outcome, error) {
	extension := strings.ToLower(filepath.Ext(filename))
	if _, ok := acceptedExtensions[extension]; !ok {
		return Outcome{Kind: OutcomeInvalidFormat}, nil
	}

	fingerprint := imaging.Fingerprint(data)
	canonical := storage.CanonicalName(fingerprint)

	existing, err := s.hashes.Find(ctx, fingerprint)
	if err == nil {
		if err := s.appendRecord(ctx, username, store.UploadRecord{
			Filename: canonical,
			URL:      existing.URL,
			Hash:     fingerprint,
		}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeDuplicate, URL: existing.URL}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, err
	}

	normalized, err := imaging.Normalize(data, s.quality)
	if err != nil {
		s.logger.Info("image normalization failed",
			zap.String("username", username),
			zap.String("filename", filename),
			zap.Error(err))
		return Outcome{Kind: OutcomeProcessingFailed}, nil
	}

	backend := storage.Select(s.compact, s.general, len(normalized))
	url, err := backend.Save(ctx, canonical, normalized)
	if err != nil {
		s.logger.Warn("backend save failed",
			zap.String("username", username),
			zap.String("object", canonical),
			zap.Error(err))
		return Outcome{Kind: OutcomeUploadFailed, Detail: err.Error()}, nil
	}

	// Index and ledger writes only happen after save succeeds, so a save
	// failure never leaves an index entry without a backing object.
	if err := s.hashes.Insert(ctx, store.HashEntry{
		Hash:       fingerprint,
		Filename:   canonical,
		URL:        url,
		UploadedBy: username,
	}); err != nil {
		return Outcome{}, err
	}
	if err := s.appendRecord(ctx, username, store.UploadRecord{
		Filename: canonical,
		URL:      url,
		Hash:     fingerprint,
	}); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("image stored",
		zap.String("username", username),
		zap.String("object", canonical),
		zap.Int("bytes", len(normalized)))
	return Outcome{Kind: OutcomeSuccess, URL: url}, nil
}

// GetUserImages returns the user's ledger in insertion order.
func (s *Service) GetUserImages(ctx context.Context, username string) ([]Image, error) {
	account, err := s.users.Find(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(account.Uploads))
	for _, record := range account.Uploads {
		images = append(images, Image{Filename: record.Filename, URL: record.URL})
	}
	return images, nil
}

// Cleanup probes every ledger entry's URL and prunes entries whose backing
// object is no longer retrievable, deleting the matching index entry as
// well. The index delete does not consult other users' ledgers; their stale
// records are closed lazily by their own cleanups.
func (s *Service) Cleanup(ctx context.Context, username string) error {
	lock := s.locks.get(username)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.users.Find(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	valid := make([]store.UploadRecord, 0, len(account.Uploads))
	for _, record := range account.Uploads {
		if s.reachable(ctx, record.URL) {
			valid = append(valid, record)
			continue
		}
		s.logger.Info("pruning unreachable upload",
			zap.String("username", username),
			zap.String("url", record.URL))
		if err := s.hashes.Delete(ctx, record.Hash); err != nil {
			return err
		}
	}

	return s.users.ReplaceUploads(ctx, username, valid)
}

func (s *Service) appendRecord(ctx context.Context, username string, record store.UploadRecord) error {
	lock := s.locks.get(username)
	lock.Lock()
	defer lock.Unlock()
	return s.users.AddUpload(ctx, username, record)
}

func (s *Service) reachable(ctx context.Context, url string) bool {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	response, err := s.probe.Do(request)
	if err != nil {
		return false
	}
	defer response.Body.Close()
	return response.StatusCode >= 200 && response.StatusCode < 300
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func isAlphanumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
