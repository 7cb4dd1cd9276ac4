package linking

import (
	"context"
	"sort"
	"sync"

	"horse.fit/atlas/internal/domain"
)

type memState struct {
	nextMentionID  int64
	nextLinkID     int64
	mentions       map[domain.MentionKey]domain.Mention
	links          map[int64]domain.EntityLink
	articleEntity  map[domain.EntityKey]map[int64]domain.ArticleEntity
	entityMentions map[domain.EntityKey]map[int64]int
}

func (s *memState) clone() *memState {
	out := &memState{
		nextMentionID:  s.nextMentionID,
		nextLinkID:     s.nextLinkID,
		mentions:       make(map[domain.MentionKey]domain.Mention, len(s.mentions)),
		links:          make(map[int64]domain.EntityLink, len(s.links)),
		articleEntity:  make(map[domain.EntityKey]map[int64]domain.ArticleEntity, len(s.articleEntity)),
		entityMentions: make(map[domain.EntityKey]map[int64]int, len(s.entityMentions)),
	}
	for k, v := range s.mentions {
		out.mentions[k] = v
	}
	for k, v := range s.links {
		out.links[k] = v
	}
	for k, inner := range s.articleEntity {
		copied := make(map[int64]domain.ArticleEntity, len(inner))
		for a, v := range inner {
			copied[a] = v
		}
		out.articleEntity[k] = copied
	}
	for k, inner := range s.entityMentions {
		copied := make(map[int64]int, len(inner))
		for a, v := range inner {
			copied[a] = v
		}
		out.entityMentions[k] = copied
	}
	return out
}

// memStore is an in-memory Store enforcing the same unique constraints as
// the atlas schema. Transactions work on a copy that replaces the state on
// commit.
type memStore struct {
	mu       sync.Mutex
	articles []domain.Article
	state    *memState

	// beforeInsert runs once, outside the transaction copy, right before the
	// next InsertLink. Tests use it to simulate a concurrent writer.
	beforeInsert func(s *memState)
}

func newMemStore(articles ...domain.Article) *memStore {
	return &memStore{
		articles: articles,
		state: &memState{
			mentions:       map[domain.MentionKey]domain.Mention{},
			links:          map[int64]domain.EntityLink{},
			articleEntity:  map[domain.EntityKey]map[int64]domain.ArticleEntity{},
			entityMentions: map[domain.EntityKey]map[int64]int{},
		},
	}
}

func (m *memStore) ListArticles(_ context.Context, q ArticleQuery) ([]domain.Article, error) {
	var out []domain.Article
	for _, article := range m.articles {
		if !q.Since.IsZero() && article.Timestamp().Before(q.Since) {
			continue
		}
		if len(q.IDs) > 0 && !containsID(q.IDs, article.ID) {
			continue
		}
		out = append(out, article)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) PurgeArticleLinks(_ context.Context, articleIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, link := range m.state.links {
		if containsID(articleIDs, m.articleOf(link.MentionID)) {
			delete(m.state.links, id)
			purged++
		}
	}
	for _, byArticle := range m.state.articleEntity {
		for _, articleID := range articleIDs {
			if _, ok := byArticle[articleID]; ok {
				delete(byArticle, articleID)
				purged++
			}
		}
	}
	for _, byArticle := range m.state.entityMentions {
		for _, articleID := range articleIDs {
			delete(byArticle, articleID)
		}
	}
	return purged, nil
}

func (m *memStore) EnsureMention(_ context.Context, mention domain.Mention) (domain.Mention, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.state.mentions[mention.Key()]; ok {
		return existing, false, nil
	}
	m.state.nextMentionID++
	mention.ID = m.state.nextMentionID
	m.state.mentions[mention.Key()] = mention
	return mention, true, nil
}

func (m *memStore) FindMention(_ context.Context, key domain.MentionKey) (domain.Mention, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.state.mentions[key]
	return existing, ok, nil
}

func (m *memStore) MentionLinks(_ context.Context, mentionID int64) ([]domain.EntityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return linksOf(m.state, mentionID), nil
}

func (m *memStore) InMentionTx(ctx context.Context, fn func(tx LinkTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) articleOf(mentionID int64) int64 {
	for _, mention := range m.state.mentions {
		if mention.ID == mentionID {
			return mention.ArticleID
		}
	}
	return 0
}

func (m *memStore) allLinks() []domain.EntityLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return linksOf(m.state, 0)
}

func (m *memStore) allMentions() []domain.Mention {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Mention, 0, len(m.state.mentions))
	for _, mention := range m.state.mentions {
		out = append(out, mention)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) articleEntity(articleID int64, key domain.EntityKey) (domain.ArticleEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.state.articleEntity[key][articleID]
	return entity, ok
}

func (m *memStore) entityMentionCount(articleID int64, key domain.EntityKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.entityMentions[key][articleID]
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) LockLinks(_ context.Context, mentionID int64) ([]domain.EntityLink, error) {
	return linksOf(t.state, mentionID), nil
}

func (t *memTx) InsertLink(_ context.Context, link domain.EntityLink) (int64, error) {
	if hook := t.store.beforeInsert; hook != nil {
		t.store.beforeInsert = nil
		hook(t.store.state)
	}
	if err := checkUnique(t.store.state, link, 0); err != nil {
		return 0, err
	}
	if err := checkUnique(t.state, link, 0); err != nil {
		return 0, err
	}
	t.state.nextLinkID++
	link.ID = t.state.nextLinkID
	t.state.links[link.ID] = link
	return link.ID, nil
}

func (t *memTx) UpdateLink(_ context.Context, link domain.EntityLink) error {
	if err := checkUnique(t.state, link, link.ID); err != nil {
		return err
	}
	t.state.links[link.ID] = link
	return nil
}

func (t *memTx) UpsertArticleEntity(_ context.Context, entity domain.ArticleEntity) error {
	key := entity.EntityKey()
	byArticle := t.state.articleEntity[key]
	if byArticle == nil {
		byArticle = map[int64]domain.ArticleEntity{}
		t.state.articleEntity[key] = byArticle
	}
	if existing, ok := byArticle[entity.ArticleID]; ok && existing.Confidence > entity.Confidence {
		entity.Confidence = existing.Confidence
	}
	byArticle[entity.ArticleID] = entity
	return nil
}

func (t *memTx) RefreshEntityMention(_ context.Context, key domain.EntityKey, articleID int64) error {
	count := 0
	for _, link := range t.state.links {
		if link.Status != domain.LinkLinked || link.EntityKey() != key {
			continue
		}
		for _, mention := range t.state.mentions {
			if mention.ID == link.MentionID && mention.ArticleID == articleID {
				count++
			}
		}
	}
	byArticle := t.state.entityMentions[key]
	if byArticle == nil {
		byArticle = map[int64]int{}
		t.state.entityMentions[key] = byArticle
	}
	if count == 0 {
		delete(byArticle, articleID)
		return nil
	}
	byArticle[articleID] = count
	return nil
}

func checkUnique(state *memState, link domain.EntityLink, selfID int64) error {
	for id, other := range state.links {
		if id == selfID || other.MentionID != link.MentionID {
			continue
		}
		if other.Status == domain.LinkLinked && link.Status == domain.LinkLinked {
			return ErrConflict
		}
		if other.Status == link.Status && other.EntityKey() == link.EntityKey() {
			return ErrConflict
		}
	}
	return nil
}

func linksOf(state *memState, mentionID int64) []domain.EntityLink {
	var out []domain.EntityLink
	for _, link := range state.links {
		if mentionID == 0 || link.MentionID == mentionID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
