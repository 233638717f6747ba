package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/TraxTaz/FontysInfraLab/internal/model"
	"github.com/TraxTaz/FontysInfraLab/internal/tunnel"
)

var ErrNotFound = errors.New("not_found")

const userConfigColumns = `
	users.email,
	ca.cert AS certificate_authority,
	certificates.prvkey AS private_key,
	certificates.cert AS certificate,
	certificates.descr AS description,
	openvpn_config.data_ciphers,
	openvpn_config.data_ciphers_fallback,
	openvpn_config.tls AS tls_static_key,
	openvpn_config.dev_mode,
	openvpn_config.digest,
	openvpn_config.localport,
	openvpn_config.protocol`

const userConfigJoins = `
	FROM users
	INNER JOIN openvpn_config ON users.vpnid = openvpn_config.vpnid
	INNER JOIN ca ON openvpn_config.caref = ca.refid
	INNER JOIN certificates ON openvpn_config.description = certificates.descr`

// Store runs every query over the shared tunneled channel, acquired
// lazily per call. An optional redis client caches principal-existence
// checks so repeated authorize calls don't each cross the tunnel.
type Store struct {
	channels *tunnel.Manager
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewStore(channels *tunnel.Manager, cache *redis.Client, cacheTTL time.Duration) *Store {
	return &Store{channels: channels, cache: cache, cacheTTL: cacheTTL}
}

func (s *Store) PrincipalExists(ctx context.Context, email string) (bool, error) {
	if cached, ok := s.cachedPrincipal(ctx, email); ok {
		return cached, nil
	}

	channel, err := s.channels.Get(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = channel.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT email FROM users WHERE email = $1
			UNION
			SELECT email FROM teachers WHERE email = $1
		)
	`, email).Scan(&exists)
	if err != nil {
		return false, err
	}

	s.storePrincipal(ctx, email, exists)
	return exists, nil
}

func (s *Store) GetUserConfig(ctx context.Context, email string) (model.UserConfig, error) {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return model.UserConfig{}, err
	}

	var cfg model.UserConfig
	row := channel.Pool.QueryRow(ctx, `SELECT`+userConfigColumns+userConfigJoins+`
	WHERE users.email = $1`, email)
	err = row.Scan(
		&cfg.Email,
		&cfg.CertificateAuthority,
		&cfg.PrivateKey,
		&cfg.Certificate,
		&cfg.Description,
		&cfg.DataCiphers,
		&cfg.DataCiphersFallback,
		&cfg.TLSStaticKey,
		&cfg.DevMode,
		&cfg.Digest,
		&cfg.LocalPort,
		&cfg.Protocol,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserConfig{}, ErrNotFound
	}
	if err != nil {
		return model.UserConfig{}, err
	}
	return cfg, nil
}

func (s *Store) ListUserRecords(ctx context.Context) ([]model.UserRecord, error) {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := channel.Pool.Query(ctx, `SELECT users.vpnid,`+userConfigColumns+userConfigJoins)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.UserRecord
	for rows.Next() {
		var rec model.UserRecord
		if err := rows.Scan(
			&rec.VPNID,
			&rec.Email,
			&rec.CertificateAuthority,
			&rec.PrivateKey,
			&rec.Certificate,
			&rec.Description,
			&rec.DataCiphers,
			&rec.DataCiphersFallback,
			&rec.TLSStaticKey,
			&rec.DevMode,
			&rec.Digest,
			&rec.LocalPort,
			&rec.Protocol,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, email, vpnID, oldEmail, oldVPNID string) error {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return err
	}
	_, err = channel.Pool.Exec(ctx, `
		UPDATE users SET email = $1, vpnid = $2 WHERE vpnid = $3 AND email = $4
	`, email, vpnID, oldVPNID, oldEmail)
	if err == nil {
		s.dropPrincipal(ctx, oldEmail, email)
	}
	return err
}

func (s *Store) CreateStudent(ctx context.Context, email, vpnID string) error {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return err
	}
	_, err = channel.Pool.Exec(ctx, `INSERT INTO users (email, vpnid) VALUES ($1, $2)`, email, vpnID)
	if err == nil {
		s.dropPrincipal(ctx, email)
	}
	return err
}

func (s *Store) DeleteStudent(ctx context.Context, email string) (bool, error) {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return false, err
	}
	tag, err := channel.Pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return false, err
	}
	s.dropPrincipal(ctx, email)
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := channel.Pool.Query(ctx, `SELECT email FROM teachers ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []model.Teacher
	for rows.Next() {
		var teacher model.Teacher
		if err := rows.Scan(&teacher.Email); err != nil {
			return nil, err
		}
		teachers = append(teachers, teacher)
	}
	return teachers, rows.Err()
}

func (s *Store) CreateTeacher(ctx context.Context, email string) error {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return err
	}
	_, err = channel.Pool.Exec(ctx, `INSERT INTO teachers (email) VALUES ($1)`, email)
	if err == nil {
		s.dropPrincipal(ctx, email)
	}
	return err
}

func (s *Store) UpdateTeacherEmail(ctx context.Context, newEmail, oldEmail string) error {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return err
	}
	_, err = channel.Pool.Exec(ctx, `UPDATE teachers SET email = $1 WHERE email = $2`, newEmail, oldEmail)
	if err == nil {
		s.dropPrincipal(ctx, oldEmail, newEmail)
	}
	return err
}

func (s *Store) DeleteTeacher(ctx context.Context, email string) (bool, error) {
	channel, err := s.channels.Get(ctx)
	if err != nil {
		return false, err
	}
	tag, err := channel.Pool.Exec(ctx, `DELETE FROM teachers WHERE email = $1`, email)
	if err != nil {
		return false, err
	}
	s.dropPrincipal(ctx, email)
	return tag.RowsAffected() > 0, nil
}

func (s *Store) cachedPrincipal(ctx context.Context, email string) (bool, bool) {
	if s.cache == nil {
		return false, false
	}
	value, err := s.cache.Get(ctx, principalKey(email)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		log.Printf("principal cache read error: %v", err)
		return false, false
	}
	return value == "1", true
}

func (s *Store) storePrincipal(ctx context.Context, email string, exists bool) {
	if s.cache == nil {
		return
	}
	value := "0"
	if exists {
		value = "1"
	}
	if err := s.cache.Set(ctx, principalKey(email), value, s.cacheTTL).Err(); err != nil {
		log.Printf("principal cache write error: %v", err)
	}
}

func (s *Store) dropPrincipal(ctx context.Context, emails ...string) {
	if s.cache == nil {
		return
	}
	for _, email := range emails {
		if err := s.cache.Del(ctx, principalKey(email)).Err(); err != nil {
			log.Printf("principal cache drop error: %v", err)
		}
	}
}

func principalKey(email string) string {
	return "vpnportal:principal:" + email
}
