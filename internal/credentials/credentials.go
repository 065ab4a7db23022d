// Package credentials decrypts device secrets stored by the inventory
// service. Decryption failures never propagate past Provider: a bad secret
// degrades to a default rather than blocking a queue claim or a scan cycle.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/snmp"
	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt is returned when a ciphertext cannot be opened.
var ErrDecrypt = errors.New("decryption failed")

// DefaultCommunity is used when a v2c community is missing or unreadable.
const DefaultCommunity = "public"

// Decrypter opens secrets encrypted at rest.
type Decrypter interface {
	Decrypt(ciphertext, iv []byte) ([]byte, error)
}

// AESDecrypter is AES-256-GCM with a key derived from the master key.
type AESDecrypter struct {
	aead cipher.AEAD
	key  []byte
}

const hkdfInfo = "netvault device credentials v1"

// NewAESDecrypter derives the data key from masterKey with HKDF-SHA256.
func NewAESDecrypter(masterKey string) (*AESDecrypter, error) {
	if masterKey == "" {
		return nil, errors.New("master key is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &AESDecrypter{aead: aead, key: key}, nil
}

// Decrypt opens ciphertext sealed with iv as nonce.
func (d *AESDecrypter) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	aead := d.aead
	if len(iv) != aead.NonceSize() {
		if len(iv) == 0 {
			return nil, fmt.Errorf("%w: missing iv", ErrDecrypt)
		}
		block, err := aes.NewCipher(d.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		if aead, err = cipher.NewGCMWithNonceSize(block, len(iv)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
	}
	plain, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}

// Encrypt seals plaintext with a fresh random nonce. Used by provisioning
// tooling and tests.
func (d *AESDecrypter) Encrypt(plaintext []byte) (model.EncryptedValue, error) {
	iv := make([]byte, d.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return model.EncryptedValue{}, fmt.Errorf("generating iv: %w", err)
	}
	return model.EncryptedValue{Ciphertext: d.aead.Seal(nil, iv, plaintext, nil), IV: iv}, nil
}

// SecretStore loads encrypted monitoring secrets. Login material arrives
// already joined into claimed rows and goes through Reveal.
type SecretStore interface {
	GetMonitoringSecrets(ctx context.Context, deviceID string) (*model.MonitoringSecrets, error)
}

// Connection is the decrypted login material of a device.
type Connection struct {
	Username string
	Password string
	Secret   string
}

// Provider resolves decrypted secrets on demand. Nothing is cached.
type Provider struct {
	store SecretStore
	dec   Decrypter
}

// NewProvider creates a provider over store and dec.
func NewProvider(store SecretStore, dec Decrypter) *Provider {
	return &Provider{store: store, dec: dec}
}

// Reveal decrypts already loaded login material.
func (p *Provider) Reveal(deviceID string, enc model.DeviceSecrets) Connection {
	return Connection{
		Username: enc.Username,
		Password: p.open(deviceID, "password", enc.Password, ""),
		Secret:   p.open(deviceID, "secret", enc.Secret, ""),
	}
}

// MonitoringTarget builds the polling target of a device. Unreadable v2c
// communities fall back to DefaultCommunity.
func (p *Provider) MonitoringTarget(ctx context.Context, d model.Device) (snmp.Target, error) {
	m, err := p.store.GetMonitoringSecrets(ctx, d.ID)
	if err != nil {
		return snmp.Target{}, fmt.Errorf("loading monitoring config for %s: %w", d.ID, err)
	}
	t := snmp.Target{Host: d.MgmtIP, Version: m.Version}
	if t.Version == model.SNMPv3 {
		t.Username = m.Username
		t.AuthProtocol = m.AuthProtocol
		t.AuthKey = p.open(d.ID, "snmp auth key", m.AuthKey, "")
		t.PrivProtocol = m.PrivProtocol
		t.PrivKey = p.open(d.ID, "snmp priv key", m.PrivKey, "")
		return t, nil
	}
	t.Version = model.SNMPv2c
	t.Community = p.open(d.ID, "snmp community", m.Community, DefaultCommunity)
	return t, nil
}

func (p *Provider) open(deviceID, field string, v model.EncryptedValue, fallback string) string {
	if v.Empty() {
		return fallback
	}
	plain, err := p.dec.Decrypt(v.Ciphertext, v.IV)
	if err != nil {
		slog.Warn("credential decryption failed, using default", "device", deviceID, "field", field, "error", err)
		return fallback
	}
	return string(plain)
}
