package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const storeTimeout = 5 * time.Second

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The audit_log table has no
// UPDATE or DELETE paths in application code.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	detail, _ := json.Marshal(entry.Detail)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_id, actor_role, action, resource_type, resource_id, success, detail, ip, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID, entry.OccurredAt, entry.ActorID, entry.ActorRole, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.Success, detail, entry.IP, entry.UserAgent,
	)
	return err
}

func (s *PGStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}
	if filter.Action != "" {
		add("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = ?", filter.ResourceType)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= ?", filter.To)
	}
	if filter.Query != "" {
		args = append(args, "%"+strings.ToLower(filter.Query)+"%")
		p := placeholder(len(args))
		conds = append(conds, "(lower(actor_id) like "+p+" or lower(resource_id) like "+p+")")
	}

	query := `select id, occurred_at, actor_id, actor_role, action, resource_type, resource_id, success, detail, ip, user_agent from audit_log`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += " order by occurred_at desc limit " + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ActorRole, &e.Action,
			&e.ResourceType, &e.ResourceID, &e.Success, &detail, &e.IP, &e.UserAgent); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(detail, &e.Detail)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
