package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDecrypter(t *testing.T) *AESDecrypter {
	t.Helper()
	d, err := NewAESDecrypter("correct horse battery staple")
	require.NoError(t, err)
	return d
}

func TestAESDecrypter_RoundTrip(t *testing.T) {
	d := newDecrypter(t)
	enc, err := d.Encrypt([]byte("enable-secret"))
	require.NoError(t, err)
	assert.Len(t, enc.IV, 12)

	plain, err := d.Decrypt(enc.Ciphertext, enc.IV)
	require.NoError(t, err)
	assert.Equal(t, "enable-secret", string(plain))
}

func TestAESDecrypter_WrongKey(t *testing.T) {
	enc, err := newDecrypter(t).Encrypt([]byte("x"))
	require.NoError(t, err)

	other, err := NewAESDecrypter("another key")
	require.NoError(t, err)
	_, err = other.Decrypt(enc.Ciphertext, enc.IV)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAESDecrypter_BadIV(t *testing.T) {
	d := newDecrypter(t)
	enc, err := d.Encrypt([]byte("x"))
	require.NoError(t, err)

	_, err = d.Decrypt(enc.Ciphertext, nil)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = d.Decrypt(enc.Ciphertext, make([]byte, 16))
	assert.ErrorIs(t, err, ErrDecrypt, "a different nonce size opens nothing sealed with 12 bytes")
}

func TestNewAESDecrypter_EmptyKey(t *testing.T) {
	_, err := NewAESDecrypter("")
	assert.Error(t, err)
}

type fakeStore struct {
	monitoring *model.MonitoringSecrets
	err        error
}

func (f *fakeStore) GetMonitoringSecrets(context.Context, string) (*model.MonitoringSecrets, error) {
	return f.monitoring, f.err
}

func TestProvider_Reveal(t *testing.T) {
	d := newDecrypter(t)
	pw, err := d.Encrypt([]byte("hunter2"))
	require.NoError(t, err)

	p := NewProvider(&fakeStore{}, d)
	conn := p.Reveal("dev-1", model.DeviceSecrets{
		Username: "backup",
		Password: pw,
		Secret:   model.EncryptedValue{Ciphertext: []byte("garbage"), IV: make([]byte, 12)},
	})
	assert.Equal(t, "backup", conn.Username)
	assert.Equal(t, "hunter2", conn.Password)
	assert.Empty(t, conn.Secret, "undecryptable secret degrades to empty")
}

func TestProvider_StoreErrorPropagates(t *testing.T) {
	p := NewProvider(&fakeStore{err: errors.New("db down")}, newDecrypter(t))
	_, err := p.MonitoringTarget(context.Background(), model.Device{ID: "dev-1"})
	assert.ErrorContains(t, err, "db down")
}

func TestProvider_MonitoringTargetV2c(t *testing.T) {
	d := newDecrypter(t)
	comm, err := d.Encrypt([]byte("n0c-ro"))
	require.NoError(t, err)
	dev := model.Device{ID: "dev-1", MgmtIP: "192.0.2.10"}

	p := NewProvider(&fakeStore{monitoring: &model.MonitoringSecrets{Version: model.SNMPv2c, Community: comm}}, d)
	target, err := p.MonitoringTarget(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", target.Host)
	assert.Equal(t, model.SNMPv2c, target.Version)
	assert.Equal(t, "n0c-ro", target.Community)
}

func TestProvider_MonitoringTargetFallsBackToPublic(t *testing.T) {
	dev := model.Device{ID: "dev-1", MgmtIP: "192.0.2.10"}
	tests := []struct {
		name      string
		community model.EncryptedValue
	}{
		{"missing", model.EncryptedValue{}},
		{"corrupt", model.EncryptedValue{Ciphertext: []byte("bad"), IV: make([]byte, 12)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(&fakeStore{monitoring: &model.MonitoringSecrets{Community: tt.community}}, newDecrypter(t))
			target, err := p.MonitoringTarget(context.Background(), dev)
			require.NoError(t, err)
			assert.Equal(t, model.SNMPv2c, target.Version)
			assert.Equal(t, DefaultCommunity, target.Community)
		})
	}
}

func TestProvider_MonitoringTargetV3(t *testing.T) {
	d := newDecrypter(t)
	auth, err := d.Encrypt([]byte("authpass"))
	require.NoError(t, err)

	p := NewProvider(&fakeStore{monitoring: &model.MonitoringSecrets{
		Version:      model.SNMPv3,
		Username:     "monitor",
		AuthProtocol: "SHA",
		AuthKey:      auth,
		PrivProtocol: "AES",
		PrivKey:      model.EncryptedValue{Ciphertext: []byte("bad"), IV: make([]byte, 12)},
	}}, d)
	target, err := p.MonitoringTarget(context.Background(), model.Device{ID: "dev-1", MgmtIP: "192.0.2.11"})
	require.NoError(t, err)
	assert.Equal(t, model.SNMPv3, target.Version)
	assert.Equal(t, "monitor", target.Username)
	assert.Equal(t, "authpass", target.AuthKey)
	assert.Empty(t, target.PrivKey)
	assert.Empty(t, target.Community)
}
