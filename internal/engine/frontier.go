package engine

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

// Frontier is the crawl state for one crawl: the visited set, the pending
// queue and the page budget. Catalog-looking URLs are served before generic
// ones; within a tier URLs are served in discovery order.
//
// A Frontier is owned by a single crawl loop and is not safe for concurrent use.
type Frontier struct {
	pq       priorityQueue
	queued   map[string]struct{}
	visited  map[string]struct{}
	order    []types.CanonicalURL
	seedHost string
	budget   int
	maxDepth int
	seq      uint64
	rules    *urlnorm.Rules
}

// NewFrontier creates the crawl state for a seed. maxDepth 0 means unlimited.
func NewFrontier(seed types.CanonicalURL, budget, maxDepth int, rules *urlnorm.Rules) (*Frontier, error) {
	host := seed.Parse().Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: seed %q has no host", types.ErrInvalidURL, seed)
	}
	if budget < 1 {
		return nil, fmt.Errorf("page budget must be >= 1, got %d", budget)
	}
	if rules == nil {
		rules = urlnorm.NewRules(nil)
	}
	f := &Frontier{
		pq:       make(priorityQueue, 0, 64),
		queued:   make(map[string]struct{}),
		visited:  make(map[string]struct{}, budget),
		seedHost: host,
		budget:   budget,
		maxDepth: maxDepth,
		rules:    rules,
	}
	heap.Init(&f.pq)
	return f, nil
}

// Push queues a URL discovered at the given depth. The returned error says
// why a URL was refused; refusals are routine and never fatal.
func (f *Frontier) Push(u types.CanonicalURL, depth int) error {
	return f.push(u, depth, "", true)
}

// PushFrom queues a URL and records the page it was found on.
func (f *Frontier) PushFrom(u types.CanonicalURL, depth int, parent types.CanonicalURL) error {
	return f.push(u, depth, parent, true)
}

// PushSeed queues the crawl seed. Path exclusions do not apply to it.
func (f *Frontier) PushSeed(u types.CanonicalURL) error {
	return f.push(u, 0, "", false)
}

func (f *Frontier) push(u types.CanonicalURL, depth int, parent types.CanonicalURL, applyRules bool) error {
	parsed := u.Parse()
	if !urlnorm.SameHost(parsed.Hostname(), f.seedHost) {
		return types.ErrCrossDomain
	}
	u = urlnorm.OnHost(u, f.seedHost)
	if f.maxDepth > 0 && depth > f.maxDepth {
		return types.ErrMaxDepth
	}
	if len(f.visited) >= f.budget {
		return types.ErrBudgetExhausted
	}
	if _, ok := f.rules.NavigationExclusion(parsed); ok && applyRules {
		return types.ErrExcluded
	}
	key := urlnorm.Hash(u)
	if _, ok := f.visited[key]; ok {
		return types.ErrDuplicate
	}
	if _, ok := f.queued[key]; ok {
		return types.ErrDuplicate
	}

	priority := types.PriorityNormal
	if f.rules.LikelyCatalog(parsed) {
		priority = types.PriorityCatalog
	}
	req := types.NewRequest(u, depth, priority)
	req.ParentURL = parent

	f.seq++
	heap.Push(&f.pq, &pqItem{request: req, priority: priority, seq: f.seq})
	f.queued[key] = struct{}{}
	return nil
}

// Pop removes and returns the next request. It returns false when the queue
// is empty or the budget has been spent, regardless of what is still queued.
func (f *Frontier) Pop() (*types.Request, bool) {
	for f.pq.Len() > 0 {
		if len(f.visited) >= f.budget {
			return nil, false
		}
		item := heap.Pop(&f.pq).(*pqItem)
		key := urlnorm.Hash(item.request.URL)
		delete(f.queued, key)
		if _, seen := f.visited[key]; seen {
			continue
		}
		return item.request, true
	}
	return nil, false
}

// MarkVisited records a URL as visited. It fails without mutating state when
// the URL was already visited or the budget is spent.
func (f *Frontier) MarkVisited(u types.CanonicalURL) error {
	u = urlnorm.OnHost(u, f.seedHost)
	key := urlnorm.Hash(u)
	if _, ok := f.visited[key]; ok {
		return types.ErrDuplicate
	}
	if len(f.visited) >= f.budget {
		return types.ErrBudgetExhausted
	}
	f.visited[key] = struct{}{}
	f.order = append(f.order, u)
	return nil
}

// IsVisited reports whether the URL has been visited.
func (f *Frontier) IsVisited(u types.CanonicalURL) bool {
	_, ok := f.visited[urlnorm.Hash(urlnorm.OnHost(u, f.seedHost))]
	return ok
}

// IsExhausted returns true when nothing more will be popped.
func (f *Frontier) IsExhausted() bool {
	return f.pq.Len() == 0 || len(f.visited) >= f.budget
}

// Len returns the number of queued requests.
func (f *Frontier) Len() int { return f.pq.Len() }

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int { return len(f.visited) }

// Visited returns visited URLs in visit order.
func (f *Frontier) Visited() []types.CanonicalURL {
	return append([]types.CanonicalURL(nil), f.order...)
}

// SeedHost returns the host every crawled URL must share.
func (f *Frontier) SeedHost() string { return f.seedHost }

// isRoutineRefusal reports Push errors that only mean "not queued".
func isRoutineRefusal(err error) bool {
	return errors.Is(err, types.ErrDuplicate) ||
		errors.Is(err, types.ErrCrossDomain) ||
		errors.Is(err, types.ErrExcluded) ||
		errors.Is(err, types.ErrMaxDepth) ||
		errors.Is(err, types.ErrBudgetExhausted)
}

// --- Priority Queue Implementation ---

type pqItem struct {
	request  *types.Request
	priority int
	seq      uint64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	// Lower priority value = higher priority, FIFO within a tier
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // GC
	item.index = -1
	*pq = old[:n-1]
	return item
}
