package sqlstore

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	usersTable        = "users"
	messagesTable     = "messages"
	mediaFilesTable   = "media_files"
	messageMediaTable = "message_media"
	memoriesTable     = "memories"
	interactionsTable = "interactions"
)

var (
	// UsersColumns holds the columns for the "users" table.
	UsersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "external_id", Type: field.TypeString, Unique: true},
		{Name: "phone_number", Type: field.TypeString, Unique: true},
		{Name: "timezone", Type: field.TypeString, Default: "UTC"},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "active", Type: field.TypeBool, Default: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// UsersTable holds the schema information for the "users" table.
	UsersTable = &schema.Table{
		Name:       usersTable,
		Columns:    UsersColumns,
		PrimaryKey: []*schema.Column{UsersColumns[0]},
	}

	// MessagesColumns holds the columns for the "messages" table.
	MessagesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "provider_message_id", Type: field.TypeString, Unique: true},
		{Name: "secondary_provider_id", Type: field.TypeString, Nullable: true},
		{Name: "body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "kind", Type: field.TypeString, Default: "text"},
		{Name: "from_address", Type: field.TypeString, Default: ""},
		{Name: "to_address", Type: field.TypeString, Default: ""},
		{Name: "status", Type: field.TypeString, Default: "received"},
		{Name: "num_media", Type: field.TypeInt, Default: 0},
		{Name: "raw_payload", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeInt64},
	}
	// MessagesTable holds the schema information for the "messages" table.
	MessagesTable = &schema.Table{
		Name:       messagesTable,
		Columns:    MessagesColumns,
		PrimaryKey: []*schema.Column{MessagesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "messages_users_messages",
				Columns:    []*schema.Column{MessagesColumns[12]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "message_user_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{MessagesColumns[12], MessagesColumns[10]},
			},
		},
	}

	// MediaFilesColumns holds the columns for the "media_files" table.
	MediaFilesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "provider_media_id", Type: field.TypeString, Default: ""},
		{Name: "content_type", Type: field.TypeString, Default: ""},
		{Name: "content_hash", Type: field.TypeString, Unique: true, Size: 64},
		{Name: "size", Type: field.TypeInt64, Default: 0},
		{Name: "storage_key", Type: field.TypeString, Default: ""},
		{Name: "storage_url", Type: field.TypeString, Default: ""},
		{Name: "reuse_count", Type: field.TypeInt64, Default: 0},
		{Name: "is_duplicate", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "canonical_id", Type: field.TypeInt64, Nullable: true},
	}
	// MediaFilesTable holds the schema information for the "media_files" table.
	MediaFilesTable = &schema.Table{
		Name:       mediaFilesTable,
		Columns:    MediaFilesColumns,
		PrimaryKey: []*schema.Column{MediaFilesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "media_files_media_files_duplicates",
				Columns:    []*schema.Column{MediaFilesColumns[11]},
				RefColumns: []*schema.Column{MediaFilesColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
	}

	// MessageMediaColumns holds the columns for the "message_media" table.
	MessageMediaColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "provider_media_id", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "message_id", Type: field.TypeInt64},
		{Name: "media_id", Type: field.TypeInt64},
	}
	// MessageMediaTable holds the schema information for the "message_media" table.
	MessageMediaTable = &schema.Table{
		Name:       messageMediaTable,
		Columns:    MessageMediaColumns,
		PrimaryKey: []*schema.Column{MessageMediaColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "message_media_messages_media",
				Columns:    []*schema.Column{MessageMediaColumns[3]},
				RefColumns: []*schema.Column{MessagesColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "message_media_media_files_links",
				Columns:    []*schema.Column{MessageMediaColumns[4]},
				RefColumns: []*schema.Column{MediaFilesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "messagemedia_message_id_media_id",
				Unique:  true,
				Columns: []*schema.Column{MessageMediaColumns[3], MessageMediaColumns[4]},
			},
		},
	}

	// MemoriesColumns holds the columns for the "memories" table.
	MemoriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "request_key", Type: field.TypeString, Unique: true, Nullable: true},
		{Name: "external_id", Type: field.TypeString, Default: ""},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "kind", Type: field.TypeString, Default: "conversation"},
		{Name: "metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeInt64},
		{Name: "source_message_id", Type: field.TypeInt64, Unique: true, Nullable: true},
	}
	// MemoriesTable holds the schema information for the "memories" table.
	MemoriesTable = &schema.Table{
		Name:       memoriesTable,
		Columns:    MemoriesColumns,
		PrimaryKey: []*schema.Column{MemoriesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "memories_users_memories",
				Columns:    []*schema.Column{MemoriesColumns[8]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "memories_messages_memory",
				Columns:    []*schema.Column{MemoriesColumns[9]},
				RefColumns: []*schema.Column{MessagesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "memory_user_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{MemoriesColumns[8], MemoriesColumns[6]},
			},
			{
				Name:    "memory_external_id",
				Unique:  false,
				Columns: []*schema.Column{MemoriesColumns[2]},
			},
		},
	}

	// InteractionsColumns holds the columns for the "interactions" table.
	InteractionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "user_message", Type: field.TypeString, Size: 2147483647},
		{Name: "bot_response", Type: field.TypeString, Size: 2147483647},
		{Name: "kind", Type: field.TypeString, Default: "conversation"},
		{Name: "sources", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeInt64},
		{Name: "source_message_id", Type: field.TypeInt64, Unique: true, Nullable: true},
		{Name: "memory_id", Type: field.TypeInt64, Nullable: true},
	}
	// InteractionsTable holds the schema information for the "interactions" table.
	InteractionsTable = &schema.Table{
		Name:       interactionsTable,
		Columns:    InteractionsColumns,
		PrimaryKey: []*schema.Column{InteractionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "interactions_users_interactions",
				Columns:    []*schema.Column{InteractionsColumns[6]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "interactions_messages_interaction",
				Columns:    []*schema.Column{InteractionsColumns[7]},
				RefColumns: []*schema.Column{MessagesColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "interactions_memories_interaction",
				Columns:    []*schema.Column{InteractionsColumns[8]},
				RefColumns: []*schema.Column{MemoriesColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "interaction_user_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{InteractionsColumns[6], InteractionsColumns[5]},
			},
		},
	}

	// Tables holds all the tables in the schema, parents before children.
	Tables = []*schema.Table{
		UsersTable,
		MessagesTable,
		MediaFilesTable,
		MessageMediaTable,
		MemoriesTable,
		InteractionsTable,
	}
)

func init() {
	MessagesTable.ForeignKeys[0].RefTable = UsersTable
	MediaFilesTable.ForeignKeys[0].RefTable = MediaFilesTable
	MessageMediaTable.ForeignKeys[0].RefTable = MessagesTable
	MessageMediaTable.ForeignKeys[1].RefTable = MediaFilesTable
	MemoriesTable.ForeignKeys[0].RefTable = UsersTable
	MemoriesTable.ForeignKeys[1].RefTable = MessagesTable
	InteractionsTable.ForeignKeys[0].RefTable = UsersTable
	InteractionsTable.ForeignKeys[1].RefTable = MessagesTable
	InteractionsTable.ForeignKeys[2].RefTable = MemoriesTable
}
