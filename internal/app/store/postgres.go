package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/db"
	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/randx"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an already migrated pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const messageColumns = `id, sender_id, receiver_id, text, attachment_url, attachment_kind, created_at, delivered, seen`

func scanMessage(row pgx.Row) (*message.Message, error) {
	var (
		id, sender, receiver pgtype.UUID
		url, kind            pgtype.Text
		m                    message.Message
	)
	if err := row.Scan(&id, &sender, &receiver, &m.Text, &url, &kind, &m.CreatedAt, &m.Delivered, &m.Seen); err != nil {
		return nil, err
	}
	m.ID = db.UUIDString(id)
	m.SenderID = db.UUIDString(sender)
	m.ReceiverID = db.UUIDString(receiver)
	if url.Valid {
		m.Attachment = &message.Attachment{URL: url.String, Kind: message.Kind(kind.String)}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Postgres) queryMessages(ctx context.Context, sql string, args ...any) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]message.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateMessage(ctx context.Context, msg *message.Message) error {
	if msg.ID == "" {
		msg.ID = randx.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var url, kind pgtype.Text
	if msg.Attachment != nil {
		url = pgtype.Text{String: msg.Attachment.URL, Valid: true}
		kind = pgtype.Text{String: string(msg.Attachment.Kind), Valid: true}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, text, attachment_url, attachment_kind, created_at, delivered, seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		db.UUID(msg.ID), db.UUID(msg.SenderID), db.UUID(msg.ReceiverID), msg.Text, url, kind,
		msg.CreatedAt, msg.Delivered, msg.Seen,
	)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if db.IsCheckViolation(err) {
		return fmt.Errorf("insert message: constraint %s: %w", db.ConstraintName(err), err)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Postgres) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	uid := db.UUID(id)
	if !uid.Valid {
		return nil, ErrNotFound
	}
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, uid))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *Postgres) FindConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	out, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		  ORDER BY created_at, seq`,
		db.UUID(a), db.UUID(b))
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return out, nil
}

func (s *Postgres) FindUndelivered(ctx context.Context, receiverID string) ([]message.Message, error) {
	out, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE receiver_id = $1 AND NOT delivered
		  ORDER BY seq`,
		db.UUID(receiverID))
	if err != nil {
		return nil, fmt.Errorf("find undelivered: %w", err)
	}
	return out, nil
}

func (s *Postgres) FindUnseen(ctx context.Context, senderID, receiverID string) ([]message.Message, error) {
	out, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen
		  ORDER BY seq`,
		db.UUID(senderID), db.UUID(receiverID))
	if err != nil {
		return nil, fmt.Errorf("find unseen: %w", err)
	}
	return out, nil
}

// patchClause builds the SET and guard for a monotonic patch. The guard keeps
// rows that are already in the target state out of the update.
func patchClause(patch message.Patch) (set string, guard string) {
	patch = patch.Normalize()
	switch {
	case patch.Seen:
		return "delivered = true, seen = true", "NOT seen"
	case patch.Delivered:
		return "delivered = true", "NOT delivered"
	}
	return "", ""
}

func (s *Postgres) UpdateMany(ctx context.Context, ids []string, patch message.Patch) ([]string, error) {
	set, guard := patchClause(patch)
	uids := db.UUIDs(ids)
	if set == "" || len(uids) == 0 {
		return []string{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`UPDATE messages SET `+set+` WHERE id = ANY($1) AND `+guard+` RETURNING id`, uids)
	if err != nil {
		return nil, fmt.Errorf("update messages: %w", err)
	}
	defer rows.Close()

	updated := make(map[string]struct{}, len(uids))
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan updated id: %w", err)
		}
		updated[db.UUIDString(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("update messages: %w", err)
	}

	// RETURNING follows scan order; callers fan out in batch order.
	changed := make([]string, 0, len(updated))
	for _, uid := range uids {
		id := db.UUIDString(uid)
		if _, ok := updated[id]; ok {
			changed = append(changed, id)
			delete(updated, id)
		}
	}
	return changed, nil
}

func (s *Postgres) UpdateOne(ctx context.Context, id string, patch message.Patch) (*message.Message, bool, error) {
	set, guard := patchClause(patch)
	uid := db.UUID(id)
	if !uid.Valid {
		return nil, false, ErrNotFound
	}

	if set != "" {
		m, err := scanMessage(s.pool.QueryRow(ctx,
			`UPDATE messages SET `+set+` WHERE id = $1 AND `+guard+` RETURNING `+messageColumns, uid))
		if err == nil {
			return m, true, nil
		}
		if !db.IsNoRows(err) {
			return nil, false, fmt.Errorf("update message: %w", err)
		}
	}

	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

func (s *Postgres) CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sender_id, count(*) FROM messages
		  WHERE receiver_id = $1 AND NOT seen
		  GROUP BY sender_id`,
		db.UUID(receiverID))
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			sender pgtype.UUID
			n      int
		)
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unseen count: %w", err)
		}
		counts[db.UUIDString(sender)] = n
	}
	return counts, rows.Err()
}

const userColumns = `id, full_name, email, password_hash, bio, profile_pic, created_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		id pgtype.UUID
		u  user.User
	)
	if err := row.Scan(&id, &u.FullName, &u.Email, &u.PasswordHash, &u.Bio, &u.ProfilePic, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = db.UUIDString(id)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = randx.NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = user.NormalizeEmail(u.Email)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, bio, profile_pic, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		db.UUID(u.ID), u.FullName, u.Email, u.PasswordHash, u.Bio, u.ProfilePic, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) getUser(ctx context.Context, where string, arg any) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	uid := db.UUID(id)
	if !uid.Valid {
		return nil, ErrNotFound
	}
	return s.getUser(ctx, "id = $1", uid)
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, "email = $1", user.NormalizeEmail(email))
}

func (s *Postgres) ListUsersExcept(ctx context.Context, id string) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY lower(full_name), id`, db.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateProfileInfo(ctx context.Context, id string, update user.ProfileUpdate) (*user.User, error) {
	uid := db.UUID(id)
	if !uid.Valid {
		return nil, ErrNotFound
	}

	sets := make([]string, 0, 2)
	args := []any{uid}
	if update.FullName != nil {
		args = append(args, *update.FullName)
		sets = append(sets, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if update.Bio != nil {
		args = append(args, *update.Bio)
		sets = append(sets, fmt.Sprintf("bio = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetUserByID(ctx, id)
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+userColumns, args...))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (s *Postgres) UpdateProfileImage(ctx context.Context, id string, url string) (*user.User, string, error) {
	uid := db.UUID(id)
	if !uid.Valid {
		return nil, "", ErrNotFound
	}

	var previous string
	var updated *user.User
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT profile_pic FROM users WHERE id = $1 FOR UPDATE`, uid).Scan(&previous); err != nil {
			return err
		}
		u, err := scanUser(tx.QueryRow(ctx,
			`UPDATE users SET profile_pic = $2 WHERE id = $1 RETURNING `+userColumns, uid, url))
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if db.IsNoRows(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("update profile image: %w", err)
	}
	return updated, previous, nil
}
