package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionDocumentChunks 文档分块集合，由离线索引流程写入
	CollectionDocumentChunks = "document_chunks"

	// VectorDimension 向量维度
	VectorDimension = 1024

	vectorField = "vector"
)

// outputFields 检索时回传的标量字段
var outputFields = []string{
	"id", "document_id", "document_title", "text",
	"chunk_index", "start_char", "end_char", "token_count",
}

// DocumentChunksSchema 文档分块 Collection Schema
func DocumentChunksSchema(name string) *entity.Schema {
	varchar := func(n, maxLen string) *entity.Field {
		return &entity.Field{
			Name:       n,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": maxLen},
		}
	}
	int64Field := func(n string) *entity.Field {
		return &entity.Field{Name: n, DataType: entity.FieldTypeInt64}
	}

	id := varchar("id", "64")
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: name,
		Description:    "Document chunks for semantic search",
		Fields: []*entity.Field{
			id,
			{
				Name:     vectorField,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(VectorDimension),
				},
			},
			varchar("document_id", "64"),
			varchar("document_title", "512"),
			varchar("text", "65535"),
			int64Field("chunk_index"),
			int64Field("start_char"),
			int64Field("end_char"),
			int64Field("token_count"),
		},
	}
}
