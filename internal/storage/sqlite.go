package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"agentstation/internal/logging"
	"agentstation/internal/state"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository bundles the conversation, task, and message stores on one
// SQLite database.
type Repository struct {
	db     *sql.DB
	logger logging.Logger
}

// Open creates (or opens) the repository database. The single connection
// serializes writers; all traffic for one process shares it.
func Open(path string, logger logging.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open repository db: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &Repository{db: db, logger: logging.OrNop(logger)}
	if err := r.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// OpenShared builds a repository on an existing connection, for sharing a
// database file with the checkpoint store.
func OpenShared(db *sql.DB, logger logging.Logger) (*Repository, error) {
	r := &Repository{db: db, logger: logging.OrNop(logger)}
	if err := r.init(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_input TEXT NOT NULL,
			parsed_intent TEXT,
			todo_list TEXT,
			current_step_index INTEGER NOT NULL DEFAULT 0,
			context TEXT,
			step_results TEXT,
			status TEXT NOT NULL,
			error_info TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			task_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_conversation ON tasks(conversation_id)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`)
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// --- Conversations ---

func (r *Repository) CreateConversation(ctx context.Context, c Conversation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	r.logger.Debug("conversation %s created", c.ID)
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	var title sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	c.Title = title.String
	return c, nil
}

func (r *Repository) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = ?
		 ORDER BY updated_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var title sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Title = title.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) TouchConversation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *Repository) DeleteConversation(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// --- Tasks ---

func (r *Repository) CreateTask(ctx context.Context, t Task) error {
	intent, todo, taskCtx, results, err := marshalTaskFields(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, conversation_id, user_id, user_input, parsed_intent, todo_list,
			current_step_index, context, step_results, status, error_info, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConversationID, t.UserID, t.UserInput, intent, todo,
		t.CurrentStepIndex, taskCtx, results, string(t.Status), t.ErrorInfo, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	r.logger.Debug("task %s created in conversation %s", t.ID, t.ConversationID)
	return nil
}

func (r *Repository) UpdateTask(ctx context.Context, t Task) error {
	intent, todo, taskCtx, results, err := marshalTaskFields(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE tasks SET parsed_intent=?, todo_list=?, current_step_index=?, context=?,
			step_results=?, status=?, error_info=?, updated_at=? WHERE id=?`,
		intent, todo, t.CurrentStepIndex, taskCtx, results,
		string(t.Status), t.ErrorInfo, time.Now().Unix(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, user_id, user_input, parsed_intent, todo_list,
			current_step_index, context, step_results, status, error_info, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return t, err
}

func (r *Repository) ListTasks(ctx context.Context, conversationID string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, user_input, parsed_intent, todo_list,
			current_step_index, context, step_results, status, error_info, created_at, updated_at
		 FROM tasks WHERE conversation_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Messages ---

func (r *Repository) CreateMessage(ctx context.Context, m Message) error {
	var meta *string
	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		v := string(data)
		meta = &v
	}
	var taskID *string
	if m.TaskID != "" {
		taskID = &m.TaskID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, task_id, role, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, taskID, m.Role, m.Content, meta, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in chronological order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, task_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var taskID, meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &taskID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.TaskID = taskID.String
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var intent, todo, taskCtx, results, errInfo sql.NullString
	err := row.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.UserInput, &intent, &todo,
		&t.CurrentStepIndex, &taskCtx, &results, (*string)(&t.Status), &errInfo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	t.ErrorInfo = errInfo.String
	if intent.Valid && intent.String != "" {
		t.ParsedIntent = &state.ParsedIntent{}
		_ = json.Unmarshal([]byte(intent.String), t.ParsedIntent)
	}
	if todo.Valid {
		_ = json.Unmarshal([]byte(todo.String), &t.TodoList)
	}
	if taskCtx.Valid {
		_ = json.Unmarshal([]byte(taskCtx.String), &t.Context)
	}
	if results.Valid {
		_ = json.Unmarshal([]byte(results.String), &t.StepResults)
	}
	return t, nil
}

func marshalTaskFields(t Task) (intent, todo, taskCtx, results *string, err error) {
	if t.ParsedIntent != nil {
		data, e := json.Marshal(t.ParsedIntent)
		if e != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal parsed_intent: %w", e)
		}
		v := string(data)
		intent = &v
	}
	if t.TodoList != nil {
		data, e := json.Marshal(t.TodoList)
		if e != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal todo_list: %w", e)
		}
		v := string(data)
		todo = &v
	}
	if t.Context != nil {
		data, e := json.Marshal(t.Context)
		if e != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal context: %w", e)
		}
		v := string(data)
		taskCtx = &v
	}
	if t.StepResults != nil {
		data, e := json.Marshal(t.StepResults)
		if e != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal step_results: %w", e)
		}
		v := string(data)
		results = &v
	}
	return intent, todo, taskCtx, results, nil
}
