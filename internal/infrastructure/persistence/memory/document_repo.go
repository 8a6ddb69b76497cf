package memory

import (
	"context"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

type documentRecord struct {
	doc entity.Document
}

// DocumentRepository 文档元数据，内存驱动下由启动流程或测试写入
type DocumentRepository struct {
	store *Store
}

func NewDocumentRepository(store *Store) *DocumentRepository {
	return &DocumentRepository{store: store}
}

// Put 写入或覆盖文档
func (r *DocumentRepository) Put(doc *entity.Document) {
	r.store.docMu.Lock()
	defer r.store.docMu.Unlock()
	r.store.documents[doc.ID] = &documentRecord{doc: *doc}
}

// Remove 删除文档
func (r *DocumentRepository) Remove(id string) {
	r.store.docMu.Lock()
	defer r.store.docMu.Unlock()
	delete(r.store.documents, id)
}

// GetByID 实现 repository.DocumentRepository
func (r *DocumentRepository) GetByID(_ context.Context, id string) (*entity.Document, error) {
	r.store.docMu.RLock()
	defer r.store.docMu.RUnlock()

	rec, ok := r.store.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d := rec.doc
	return &d, nil
}

// GetTitles 实现 repository.DocumentRepository
func (r *DocumentRepository) GetTitles(_ context.Context, ids []string) (map[string]string, error) {
	r.store.docMu.RLock()
	defer r.store.docMu.RUnlock()

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if rec, ok := r.store.documents[id]; ok {
			out[id] = rec.doc.Title
		}
	}
	return out, nil
}

// DocumentSummary 实现 retrieval.SummaryProvider
func (r *DocumentRepository) DocumentSummary(ctx context.Context, documentID string) (string, error) {
	doc, err := r.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	return doc.Summary, nil
}
