package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/db/ent/schema/utils"

	"github.com/google/uuid"
)

type DocumentJob struct{ ent.Schema }

func (DocumentJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "document_job"},
	}
}

func (DocumentJob) Fields() []ent.Field {
	return []ent.Field{
		// id is the job ID, derived from (document_id, source_timestamp), so a
		// redelivered ingest message maps to the same row.
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("document_id", uuid.UUID{}).Immutable(),
		field.String("bucket").NotEmpty().Immutable(),
		field.String("object_key").NotEmpty().Immutable(),
		field.String("status").
			Default(string(constants.JobStatusSubmitted)).
			Validate(utils.EnumValidator(constants.JobStatusStrings()...)),
		// features requested at submission; fixed for the life of the job so
		// the completion handler can pick the matching result API.
		field.JSON("textract_features", []string{}).Optional().Immutable(),
		field.String("textract_job_id").Optional().Nillable(),
		field.Time("source_timestamp").Immutable(),
		field.Int64("file_size").Default(0),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("completed_at").Optional().Nillable(),
	}
}

func (DocumentJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "source_timestamp"),
		index.Fields("textract_job_id"),
		index.Fields("status", "updated_at"),
	}
}
