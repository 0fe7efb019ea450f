package devserver

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

type StoredMessage struct {
	ID                string
	UserID            int64
	Sender            string // "user" or "bot"
	Content           string
	DetectedEmotion   string
	EmotionConfidence float64
	HasEmotion        bool
	IsCrisis          bool
	Timestamp         time.Time
}

type EmotionLog struct {
	ID         int64
	UserID     int64
	Emotion    string
	Confidence float64
	Timestamp  time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
        content TEXT NOT NULL,
        detected_emotion TEXT,
        emotion_confidence REAL,
        is_crisis BOOLEAN DEFAULT FALSE,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS emotion_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        emotion TEXT NOT NULL,
        confidence REAL NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *Store) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *Store) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()

	var user User
	err = s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Message methods

func (s *Store) SaveMessage(msg *StoredMessage) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var emotion sql.NullString
	var confidence sql.NullFloat64
	if msg.HasEmotion {
		emotion = sql.NullString{String: msg.DetectedEmotion, Valid: true}
		confidence = sql.NullFloat64{Float64: msg.EmotionConfidence, Valid: true}
	}

	stmt, err := s.db.Prepare("INSERT INTO messages (id, user_id, sender, content, detected_emotion, emotion_confidence, is_crisis, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.UserID, msg.Sender, msg.Content, emotion, confidence, msg.IsCrisis, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// RecentMessages returns the user's last n messages in chronological order.
func (s *Store) RecentMessages(userID int64, n int) ([]StoredMessage, error) {
	query := `
        SELECT id, user_id, sender, content, detected_emotion, emotion_confidence, is_crisis, timestamp
        FROM messages
        WHERE user_id = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?
    `

	rows, err := s.db.Query(query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var msg StoredMessage
		var emotion sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Sender, &msg.Content, &emotion, &confidence, &msg.IsCrisis, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if emotion.Valid {
			msg.DetectedEmotion = emotion.String
			msg.EmotionConfidence = confidence.Float64
			msg.HasEmotion = true
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	// Query returns newest first; callers want oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Emotion log methods

func (s *Store) LogEmotion(userID int64, emotion string, confidence float64) error {
	_, err := s.db.Exec("INSERT INTO emotion_logs (user_id, emotion, confidence, timestamp) VALUES (?, ?, ?, ?)", userID, emotion, confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert emotion log: %w", err)
	}
	return nil
}

// RecentEmotions returns the user's last n emotion log entries, newest first.
func (s *Store) RecentEmotions(userID int64, n int) ([]EmotionLog, error) {
	rows, err := s.db.Query("SELECT id, user_id, emotion, confidence, timestamp FROM emotion_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?", userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query emotion logs: %w", err)
	}
	defer rows.Close()

	var logs []EmotionLog
	for rows.Next() {
		var entry EmotionLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Emotion, &entry.Confidence, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan emotion log row: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emotion log rows: %w", err)
	}
	return logs, nil
}
