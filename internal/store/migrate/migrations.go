package migrate

// Migrations is the shipped migration sequence. Entries are append-only:
// version 2 recreates the tasks table to relax the account/calendar columns
// to nullable rather than editing version 1, and version 3 adds the url
// column the same way.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "create initial tables",
		SQL: `
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			server_url TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			server_type TEXT,
			last_sync TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE calendars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER REFERENCES accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			ctag TEXT NOT NULL DEFAULT '',
			sync_token TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			components TEXT NOT NULL DEFAULT 'VTODO'
		);

		CREATE TABLE tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			etag TEXT,
			href TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			category TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			start_date TEXT,
			start_all_day INTEGER NOT NULL DEFAULT 0,
			due_date TEXT,
			due_all_day INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			reminders TEXT NOT NULL DEFAULT '[]',
			subtasks TEXT NOT NULL DEFAULT '[]',
			parent_uid TEXT,
			is_collapsed INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			calendar_id INTEGER NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
			synced INTEGER NOT NULL DEFAULT 0,
			local_only INTEGER NOT NULL DEFAULT 0,
			CHECK ((completed = 0) = (completed_at IS NULL))
		);

		CREATE TABLE tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			color TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE pending_deletions (
			uid TEXT PRIMARY KEY,
			href TEXT NOT NULL,
			account_id INTEGER,
			calendar_id INTEGER
		);

		CREATE TABLE ui_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			selected_account_id INTEGER,
			selected_calendar_id INTEGER,
			sort_mode TEXT NOT NULL DEFAULT 'manual',
			sort_desc INTEGER NOT NULL DEFAULT 0,
			show_completed INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX idx_calendars_account ON calendars(account_id);
		CREATE INDEX idx_tasks_calendar ON tasks(calendar_id);
		CREATE INDEX idx_tasks_account ON tasks(account_id);
		CREATE INDEX idx_tasks_parent ON tasks(parent_uid);
		CREATE INDEX idx_tasks_completed ON tasks(completed);
		CREATE INDEX idx_tasks_synced ON tasks(synced);
		`,
	},
	{
		Version:     2,
		Description: "allow tasks without account or calendar",
		SQL: `
		CREATE TABLE tasks_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			etag TEXT,
			href TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			category TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			start_date TEXT,
			start_all_day INTEGER NOT NULL DEFAULT 0,
			due_date TEXT,
			due_all_day INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			reminders TEXT NOT NULL DEFAULT '[]',
			subtasks TEXT NOT NULL DEFAULT '[]',
			parent_uid TEXT,
			is_collapsed INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			account_id INTEGER REFERENCES accounts(id) ON DELETE CASCADE,
			calendar_id INTEGER REFERENCES calendars(id) ON DELETE CASCADE,
			synced INTEGER NOT NULL DEFAULT 0,
			local_only INTEGER NOT NULL DEFAULT 0,
			CHECK ((completed = 0) = (completed_at IS NULL))
		);

		INSERT INTO tasks_new SELECT * FROM tasks;
		DROP TABLE tasks;
		ALTER TABLE tasks_new RENAME TO tasks;

		CREATE INDEX idx_tasks_calendar ON tasks(calendar_id);
		CREATE INDEX idx_tasks_account ON tasks(account_id);
		CREATE INDEX idx_tasks_parent ON tasks(parent_uid);
		CREATE INDEX idx_tasks_completed ON tasks(completed);
		CREATE INDEX idx_tasks_synced ON tasks(synced);
		`,
	},
	{
		Version:     3,
		Description: "add url column to tasks",
		SQL:         `ALTER TABLE tasks ADD COLUMN url TEXT;`,
	},
}
