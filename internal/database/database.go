// Package database provides SQLite storage for the feed reader.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"skimmer/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	// foreign_keys is per-connection in SQLite, so it goes in the DSN where
	// every pooled connection picks it up.
	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false for SQLite due to write locking.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		last_refreshed DATETIME,
		last_error TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		link TEXT NOT NULL,
		pub_date DATETIME NOT NULL,
		author TEXT DEFAULT '',
		image_url TEXT DEFAULT '',
		is_read INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(feed_id, link)
	);
	CREATE INDEX IF NOT EXISTS idx_articles_pub_date ON articles(pub_date DESC);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default polling interval (15 minutes minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('polling_interval_minutes', '15');
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Feed Methods ---

// CreateFeed adds a new feed and returns the created row.
func (db *DB) CreateFeed(name, url string) (*model.Feed, error) {
	now := time.Now()
	res, err := db.conn.Exec(
		"INSERT INTO feeds (name, url, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, url, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetFeedByID(id)
}

// GetFeedByID returns a single feed, or ErrNotFound.
func (db *DB) GetFeedByID(feedID int64) (*model.Feed, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, url, last_refreshed, last_error, created_at, updated_at FROM feeds WHERE id = ?",
		feedID)
	return scanFeedRow(row)
}

// GetFeedByURL returns the feed subscribed at the given URL, or ErrNotFound.
func (db *DB) GetFeedByURL(url string) (*model.Feed, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, url, last_refreshed, last_error, created_at, updated_at FROM feeds WHERE url = ?",
		url)
	return scanFeedRow(row)
}

// GetAllFeeds returns all feeds ordered by name.
func (db *DB) GetAllFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, url, last_refreshed, last_error, created_at, updated_at FROM feeds ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// UpdateFeed updates name and/or url of a feed. Nil fields are left unchanged.
func (db *DB) UpdateFeed(feedID int64, name, url *string) (*model.Feed, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if url != nil {
		sets = append(sets, "url = ?")
		args = append(args, *url)
	}
	args = append(args, feedID)
	res, err := db.conn.Exec("UPDATE feeds SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetFeedByID(feedID)
}

// UpdateFeedName sets the display name of a feed.
func (db *DB) UpdateFeedName(feedID int64, name string) error {
	_, err := db.conn.Exec("UPDATE feeds SET name = ?, updated_at = ? WHERE id = ?", name, time.Now(), feedID)
	return err
}

// UpdateFeedLastRefreshed updates the last_refreshed timestamp and clears the
// recorded fetch error.
func (db *DB) UpdateFeedLastRefreshed(feedID int64, t time.Time) error {
	_, err := db.conn.Exec("UPDATE feeds SET last_refreshed = ?, last_error = '', updated_at = ? WHERE id = ?", t, time.Now(), feedID)
	return err
}

// UpdateFeedError records the most recent fetch/parse error for UI display.
func (db *DB) UpdateFeedError(feedID int64, errMsg string) error {
	_, err := db.conn.Exec("UPDATE feeds SET last_error = ?, updated_at = ? WHERE id = ?", errMsg, time.Now(), feedID)
	return err
}

// DeleteFeed removes a feed and its articles. Articles are deleted
// explicitly so the cascade does not depend on the foreign_keys pragma.
func (db *DB) DeleteFeed(feedID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM articles WHERE feed_id = ?", feedID); err != nil {
		tx.Rollback()
		return err
	}
	res, err := tx.Exec("DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Article Methods ---

// AddArticle inserts an article if the (feed_id, link) pair is unseen.
// Returns the row id and whether it was new. A duplicate insert is the
// expected outcome of the dedup race and is not an error.
func (db *DB) AddArticle(a *model.Article) (int64, bool, error) {
	now := time.Now()
	res, err := db.conn.Exec(`
		INSERT INTO articles (feed_id, title, description, link, pub_date, author, image_url, is_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(feed_id, link) DO NOTHING`,
		a.FeedID, a.Title, a.Description, a.Link, a.PubDate, a.Author, a.ImageURL, now, now)
	if err != nil {
		return 0, false, err
	}
	id, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return id, affected > 0, nil
}

// GetArticleByID returns a single article, or ErrNotFound.
func (db *DB) GetArticleByID(articleID int64) (*model.Article, error) {
	row := db.conn.QueryRow(
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID)
	return scanArticleRow(row)
}

// GetArticles returns articles ordered by pub_date descending, applying the
// given filter.
func (db *DB) GetArticles(filter ArticleFilter) ([]model.Article, error) {
	query := "SELECT " + articleColumns + " FROM articles"
	var where []string
	var args []interface{}
	if filter.FeedID != nil {
		where = append(where, "feed_id = ?")
		args = append(args, *filter.FeedID)
	}
	if filter.OnlyUnread {
		where = append(where, "is_read = 0")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pub_date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// CountArticles returns the number of stored articles for a feed.
func (db *DB) CountArticles(feedID int64) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE feed_id = ?", feedID).Scan(&n)
	return n, err
}

// SetArticleRead flips the read flag and returns the updated article.
func (db *DB) SetArticleRead(articleID int64, isRead bool) (*model.Article, error) {
	read := 0
	if isRead {
		read = 1
	}
	res, err := db.conn.Exec("UPDATE articles SET is_read = ?, updated_at = ? WHERE id = ?", read, time.Now(), articleID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetArticleByID(articleID)
}

// CleanupReadArticles deletes all articles marked as read.
func (db *DB) CleanupReadArticles() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM articles WHERE is_read = 1")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetPollingInterval returns the polling interval in minutes, with a minimum of 15.
func (db *DB) GetPollingInterval() (int, error) {
	val, err := db.GetSetting(model.SettingPollingInterval)
	if err != nil {
		return 15, nil // default
	}
	var mins int
	fmt.Sscanf(val, "%d", &mins)
	if mins < 15 {
		mins = 15
	}
	return mins, nil
}

// --- Helper functions ---

const articleColumns = "id, feed_id, title, description, link, pub_date, author, image_url, is_read, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(s rowScanner) (*model.Feed, error) {
	var f model.Feed
	var lastRefreshed sql.NullTime
	var lastError sql.NullString
	if err := s.Scan(&f.ID, &f.Name, &f.URL, &lastRefreshed, &lastError, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if lastRefreshed.Valid {
		t := lastRefreshed.Time
		f.LastRefreshed = &t
	}
	if lastError.Valid {
		f.LastError = lastError.String
	}
	return &f, nil
}

func scanFeedRow(row *sql.Row) (*model.Feed, error) {
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

func scanArticle(s rowScanner) (*model.Article, error) {
	var a model.Article
	var author, imageURL sql.NullString
	if err := s.Scan(&a.ID, &a.FeedID, &a.Title, &a.Description, &a.Link, &a.PubDate, &author, &imageURL, &a.IsRead, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Author = author.String
	a.ImageURL = imageURL.String
	return &a, nil
}

func scanArticleRow(row *sql.Row) (*model.Article, error) {
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}
