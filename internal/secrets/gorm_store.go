package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretRecord is the at-rest shape of a secret. The data blob is
// sealed with ChaCha20-Poly1305; only the path and metadata are
// readable in the database.
type SecretRecord struct {
	Path         string `gorm:"primaryKey;size:512"`
	Ciphertext   []byte
	MetadataJSON []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SecretRecord) TableName() string {
	return "secrets"
}

// GormStore persists secrets in the relational database, encrypted
// under a 32-byte key held only in process memory.
type GormStore struct {
	db   *gorm.DB
	aead func() (aeadCipher, error)
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

func NewGormStore(db *gorm.DB, key []byte) (*GormStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secret encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &GormStore{
		db: db,
		aead: func() (aeadCipher, error) {
			return chacha20poly1305.New(keyCopy)
		},
	}, nil
}

func (s *GormStore) StoreSecret(ctx context.Context, path string, data map[string]string, metadata *domain.SecretMetadata) error {
	ciphertext, err := s.seal(path, data)
	if err != nil {
		return err
	}

	record := SecretRecord{
		Path:       path,
		Ciphertext: ciphertext,
	}

	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal secret metadata: %w", err)
		}

		record.MetadataJSON = metadataJSON
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "metadata_json", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}

	return nil
}

func (s *GormStore) GetSecret(ctx context.Context, path string) (domain.Secret, error) {
	var record SecretRecord

	err := s.db.WithContext(ctx).First(&record, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Secret{}, domain.ErrSecretNotFound
	}
	if err != nil {
		return domain.Secret{}, fmt.Errorf("failed to read secret: %w", err)
	}

	data, err := s.open(path, record.Ciphertext)
	if err != nil {
		return domain.Secret{}, err
	}

	secret := domain.Secret{
		Path: path,
		Data: data,
	}

	if len(record.MetadataJSON) > 0 {
		if err := json.Unmarshal(record.MetadataJSON, &secret.Metadata); err != nil {
			return domain.Secret{}, fmt.Errorf("failed to unmarshal secret metadata: %w", err)
		}
	}

	return secret, nil
}

func (s *GormStore) DeleteSecret(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).Delete(&SecretRecord{}, "path = ?", path).Error
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}

func (s *GormStore) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	var paths []string

	err := s.db.WithContext(ctx).
		Model(&SecretRecord{}).
		Where("path LIKE ?", prefix+"%").
		Order("path").
		Pluck("path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}

	return paths, nil
}

// RotateSecret replaces the data blob in place. The write is read
// back before returning so rotation never reports success for a value
// that is not durably readable.
func (s *GormStore) RotateSecret(ctx context.Context, path string, newData map[string]string) error {
	var record SecretRecord

	err := s.db.WithContext(ctx).First(&record, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrSecretNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read secret for rotation: %w", err)
	}

	ciphertext, err := s.seal(path, newData)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Model(&SecretRecord{}).
		Where("path = ?", path).
		Update("ciphertext", ciphertext).Error
	if err != nil {
		return fmt.Errorf("failed to rotate secret: %w", err)
	}

	if _, err := s.GetSecret(ctx, path); err != nil {
		return fmt.Errorf("rotated secret not readable: %w", err)
	}

	return nil
}

func (s *GormStore) seal(path string, data map[string]string) ([]byte, error) {
	cipher, err := s.aead()
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret data: %w", err)
	}

	nonce := make([]byte, cipher.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The path is bound as additional data so a ciphertext cannot be
	// replayed under another tenant's path.
	sealed := cipher.Seal(nil, nonce, plaintext, []byte(path))

	return append(nonce, sealed...), nil
}

func (s *GormStore) open(path string, ciphertext []byte) (map[string]string, error) {
	cipher, err := s.aead()
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}

	if len(ciphertext) < cipher.NonceSize() {
		return nil, fmt.Errorf("secret ciphertext too short")
	}

	nonce := ciphertext[:cipher.NonceSize()]

	plaintext, err := cipher.Open(nil, nonce, ciphertext[cipher.NonceSize():], []byte(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	var data map[string]string
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret data: %w", err)
	}

	return data, nil
}
