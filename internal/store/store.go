// Package store reads articles from and records audio URLs into the MySQL
// database of the learning app.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-sql-driver/mysql"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// Reading is one article joined with its learning unit.
type Reading struct {
	ID         int64
	UnitID     int64
	Title      string
	Content    string
	AudioURL   string // "" when no audio has been generated
	UnitName   string
	UnitNumber int
}

// HasAudio reports whether the article already has an audio URL.
func (r Reading) HasAudio() bool {
	return strings.TrimSpace(r.AudioURL) != ""
}

// Label names the reading for log output.
func (r Reading) Label() string {
	if r.UnitName != "" {
		return fmt.Sprintf("%s #%d %s", r.UnitName, r.ID, r.Title)
	}
	return fmt.Sprintf("Unit %d #%d %s", r.UnitNumber, r.ID, r.Title)
}

// Filter selects readings.
type Filter struct {
	Unit        int  // unit number, ignored when All is set
	All         bool // every unit
	MissingOnly bool // only readings without an audio URL
}

// Validate checks that the filter names a unit or all units.
func (f Filter) Validate() error {
	if !f.All && f.Unit < 1 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			"select a unit number or all units", nil)
	}
	return nil
}

func (f Filter) String() string {
	s := "all units"
	if !f.All {
		s = fmt.Sprintf("unit %d", f.Unit)
	}
	if f.MissingOnly {
		s += " (missing audio)"
	}
	return s
}

// Message is one assistant reply of a chat conversation.
type Message struct {
	ID             int64
	ConversationID int64
	OrderIndex     int
	Content        string
	AudioURL       string
}

// HasAudio reports whether the message already has an audio URL.
func (m Message) HasAudio() bool {
	return strings.TrimSpace(m.AudioURL) != ""
}

// Label names the message for log output.
func (m Message) Label() string {
	return fmt.Sprintf("conversation %d message #%d", m.ConversationID, m.ID)
}

// MessageFilter selects assistant messages.
type MessageFilter struct {
	Conversation int64 // 0 selects every conversation
	MissingOnly  bool
}

func (f MessageFilter) String() string {
	s := "all conversations"
	if f.Conversation > 0 {
		s = fmt.Sprintf("conversation %d", f.Conversation)
	}
	if f.MissingOnly {
		s += " (missing audio)"
	}
	return s
}

// Config holds MySQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConns int
	ConnTimeout  time.Duration
}

// DSN renders the go-sql-driver data source name.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	if c.ConnTimeout > 0 {
		mc.Timeout = c.ConnTimeout
	}
	return mc.FormatDSN()
}

// Validate checks that the connection settings are complete.
func (c Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			"database: missing "+strings.Join(missing, ", "), nil)
	}
	if c.Port < 0 || c.Port > 65535 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("database: invalid port %d", c.Port), nil)
	}
	return nil
}

// ReadingStore reads unit_readings and chat_messages and writes their
// audio_url columns.
type ReadingStore struct {
	db *sql.DB
}

// Open connects to MySQL and pings it.
func Open(ctx context.Context, cfg Config) (*ReadingStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "open database", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, tts.NewError(tts.ErrorCodeStoreFailure,
			fmt.Sprintf("connect to %s@%s/%s", cfg.User, cfg.Host, cfg.Database), err)
	}
	log.Debug("connected to database", "host", cfg.Host, "database", cfg.Database)
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *ReadingStore {
	return &ReadingStore{db: db}
}

const listQuery = `SELECT ur.id, ur.unit_id, ur.title, ur.content, ur.audio_url, lu.unit_name, lu.unit_number
FROM unit_readings ur
LEFT JOIN learning_units lu ON ur.unit_id = lu.id`

// ListReadings returns the readings matching f, ordered by unit number and
// then by their order within the unit.
func (s *ReadingStore) ListReadings(ctx context.Context, f Filter) ([]Reading, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !f.All {
		where = append(where, "lu.unit_number = ?")
		args = append(args, f.Unit)
	}
	if f.MissingOnly {
		where = append(where, "(ur.audio_url IS NULL OR ur.audio_url = '')")
	}
	query := listQuery
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY lu.unit_number, ur.order_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeStoreFailure, "list readings", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			r          Reading
			title      sql.NullString
			audioURL   sql.NullString
			unitName   sql.NullString
			unitNumber sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.UnitID, &title, &r.Content, &audioURL, &unitName, &unitNumber); err != nil {
			return nil, tts.NewError(tts.ErrorCodeStoreFailure, "scan reading", err)
		}
		r.Title = title.String
		r.AudioURL = audioURL.String
		r.UnitName = unitName.String
		r.UnitNumber = int(unitNumber.Int64)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tts.NewError(tts.ErrorCodeStoreFailure, "list readings", err)
	}

	log.Debug("listed readings", "filter", f, "count", len(readings))
	return readings, nil
}

const messageQuery = `SELECT id, conversation_id, order_index, content, audio_url
FROM chat_messages
WHERE role = 'assistant'`

// ListMessages returns the assistant messages matching f, ordered by
// conversation and then by position in the conversation.
func (s *ReadingStore) ListMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	query, args := messageQuery, []any(nil)
	if f.Conversation > 0 {
		query += " AND conversation_id = ?"
		args = append(args, f.Conversation)
	}
	if f.MissingOnly {
		query += " AND (audio_url IS NULL OR audio_url = '')"
	}
	query += "\nORDER BY conversation_id, order_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeStoreFailure, "list messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m        Message
			order    sql.NullInt64
			audioURL sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &order, &m.Content, &audioURL); err != nil {
			return nil, tts.NewError(tts.ErrorCodeStoreFailure, "scan message", err)
		}
		m.OrderIndex = int(order.Int64)
		m.AudioURL = audioURL.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, tts.NewError(tts.ErrorCodeStoreFailure, "list messages", err)
	}

	log.Debug("listed messages", "filter", f, "count", len(messages))
	return messages, nil
}

// SetAudioURL records url as the audio of reading id.
func (s *ReadingStore) SetAudioURL(ctx context.Context, id int64, url string) error {
	return s.setURL(ctx, "UPDATE unit_readings SET audio_url = ? WHERE id = ?", "reading", id, url)
}

// SetMessageAudioURL records url as the audio of chat message id.
func (s *ReadingStore) SetMessageAudioURL(ctx context.Context, id int64, url string) error {
	return s.setURL(ctx, "UPDATE chat_messages SET audio_url = ? WHERE id = ?", "message", id, url)
}

func (s *ReadingStore) setURL(ctx context.Context, query, what string, id int64, url string) error {
	if url == "" {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("empty audio url for %s %d", what, id), nil)
	}
	res, err := s.db.ExecContext(ctx, query, url, id)
	if err != nil {
		return tts.NewError(tts.ErrorCodeStoreFailure, fmt.Sprintf("update %s %d", what, id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tts.NewError(tts.ErrorCodeStoreFailure, fmt.Sprintf("update %s %d", what, id), err)
	}
	if n == 0 {
		// MySQL reports 0 when the value is unchanged, so only warn.
		log.Warn("audio url update matched no changed rows", what, id)
	}
	return nil
}

// Close closes the database handle.
func (s *ReadingStore) Close() error {
	return s.db.Close()
}
