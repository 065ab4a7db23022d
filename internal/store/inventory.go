package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/darshan-rambhia/netvault/internal/model"
)

// DeviceRecord is a full inventory row, used by provisioning and tests.
type DeviceRecord struct {
	model.Device
	Secrets    model.DeviceSecrets
	Monitoring model.MonitoringSecrets
}

// UpsertDevice inserts or updates a device inventory record.
func (s *Store) UpsertDevice(ctx context.Context, d DeviceRecord) error {
	version := d.Monitoring.Version
	if version == "" {
		version = model.SNMPv2c
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO devices (id, tenant_id, hostname, mgmt_ip, ssh_port, vendor, active,
			username, password_enc, password_iv, secret_enc, secret_iv,
			snmp_version, snmp_community_enc, snmp_community_iv, snmp_username,
			snmp_auth_protocol, snmp_auth_key_enc, snmp_auth_key_iv,
			snmp_priv_protocol, snmp_priv_key_enc, snmp_priv_key_iv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			hostname = excluded.hostname,
			mgmt_ip = excluded.mgmt_ip,
			ssh_port = excluded.ssh_port,
			vendor = excluded.vendor,
			active = excluded.active,
			username = excluded.username,
			password_enc = excluded.password_enc,
			password_iv = excluded.password_iv,
			secret_enc = excluded.secret_enc,
			secret_iv = excluded.secret_iv,
			snmp_version = excluded.snmp_version,
			snmp_community_enc = excluded.snmp_community_enc,
			snmp_community_iv = excluded.snmp_community_iv,
			snmp_username = excluded.snmp_username,
			snmp_auth_protocol = excluded.snmp_auth_protocol,
			snmp_auth_key_enc = excluded.snmp_auth_key_enc,
			snmp_auth_key_iv = excluded.snmp_auth_key_iv,
			snmp_priv_protocol = excluded.snmp_priv_protocol,
			snmp_priv_key_enc = excluded.snmp_priv_key_enc,
			snmp_priv_key_iv = excluded.snmp_priv_key_iv`,
		d.ID, d.TenantID, d.Hostname, d.MgmtIP, d.SSHPort, d.Vendor, d.Active,
		d.Secrets.Username, d.Secrets.Password.Ciphertext, d.Secrets.Password.IV,
		d.Secrets.Secret.Ciphertext, d.Secrets.Secret.IV,
		string(version), d.Monitoring.Community.Ciphertext, d.Monitoring.Community.IV,
		d.Monitoring.Username, d.Monitoring.AuthProtocol,
		d.Monitoring.AuthKey.Ciphertext, d.Monitoring.AuthKey.IV,
		d.Monitoring.PrivProtocol, d.Monitoring.PrivKey.Ciphertext, d.Monitoring.PrivKey.IV,
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// ListTenants returns every tenant that owns at least one active device.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT DISTINCT tenant_id FROM devices WHERE active = ? ORDER BY tenant_id`, true)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

const deviceColumns = `id, tenant_id, hostname, mgmt_ip, ssh_port, vendor, active`

func scanDevice(row interface{ Scan(...any) error }, d *model.Device) error {
	return row.Scan(&d.ID, &d.TenantID, &d.Hostname, &d.MgmtIP, &d.SSHPort, &d.Vendor, &d.Active)
}

// ListActiveDevices returns the active devices of a tenant.
func (s *Store) ListActiveDevices(ctx context.Context, tenantID string) ([]model.Device, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+deviceColumns+` FROM devices
		WHERE tenant_id = ? AND active = ?
		ORDER BY hostname, id`, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("listing devices for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		if err := scanDevice(rows, &d); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetDevice returns a device of the given tenant, or ErrNotFound.
func (s *Store) GetDevice(ctx context.Context, tenantID, deviceID string) (*model.Device, error) {
	var d model.Device
	err := scanDevice(s.queryRow(ctx, s.db, `
		SELECT `+deviceColumns+` FROM devices WHERE id = ? AND tenant_id = ?`,
		deviceID, tenantID), &d)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting device %s: %w", deviceID, err)
	}
	return &d, nil
}

// GetMonitoringSecrets returns the encrypted monitoring configuration of a
// device.
func (s *Store) GetMonitoringSecrets(ctx context.Context, deviceID string) (*model.MonitoringSecrets, error) {
	var (
		m       model.MonitoringSecrets
		version string
	)
	err := s.queryRow(ctx, s.db, `
		SELECT snmp_version, snmp_community_enc, snmp_community_iv, snmp_username,
			snmp_auth_protocol, snmp_auth_key_enc, snmp_auth_key_iv,
			snmp_priv_protocol, snmp_priv_key_enc, snmp_priv_key_iv
		FROM devices WHERE id = ?`, deviceID).Scan(
		&version, &m.Community.Ciphertext, &m.Community.IV, &m.Username,
		&m.AuthProtocol, &m.AuthKey.Ciphertext, &m.AuthKey.IV,
		&m.PrivProtocol, &m.PrivKey.Ciphertext, &m.PrivKey.IV,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting monitoring secrets for %s: %w", deviceID, err)
	}
	m.Version = model.SNMPVersion(version)
	return &m, nil
}
