package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"
)

// PlannerOptions carries session policy.
type PlannerOptions struct {
	SessionID    string
	Tolerance    float64
	SkipWeekends bool
	Now          func() time.Time
}

// Planner orchestrates order selection, route mutation and map display for
// one session. The caches it uses are injected and live as long as it does.
type Planner struct {
	geocode *GeocodeCache
	orders  *OrderCache
	routes  *SequenceStore
	events  ports.RouteEventPublisher

	sched  *LatestScheduler
	cancel context.CancelFunc

	sessionID    string
	tolerance    float64
	skipWeekends bool
	now          func() time.Time
}

// SelectionOutcome is the result for one order of a cluster selection.
type SelectionOutcome struct {
	OrderID  string `json:"orderNumber"`
	Added    bool   `json:"added"`
	Skipped  bool   `json:"skipped"`
	Sequence int    `json:"sequence,omitempty"`
	Err      error  `json:"-"`
}

// NewPlanner wires the session components. events may be nil.
func NewPlanner(
	geocode *GeocodeCache,
	orders *OrderCache,
	routes *SequenceStore,
	events ports.RouteEventPublisher,
	opts PlannerOptions,
) *Planner {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Planner{
		geocode:      geocode,
		orders:       orders,
		routes:       routes,
		events:       events,
		sched:        NewLatestScheduler(ctx),
		cancel:       cancel,
		sessionID:    opts.SessionID,
		tolerance:    opts.Tolerance,
		skipWeekends: opts.SkipWeekends,
		now:          opts.Now,
	}
}

func (p *Planner) SessionID() string { return p.sessionID }

// Forecast is the default forecast date: the next business day.
func (p *Planner) Forecast() string {
	return domain.ForecastDate(p.now(), p.skipWeekends)
}

// Key builds a route key, defaulting the forecast date.
func (p *Planner) Key(technician, forecast string) domain.RouteKey {
	if forecast == "" {
		forecast = p.Forecast()
	}
	return domain.RouteKey{TechnicianID: technician, ForecastDate: forecast}
}

// Route returns the confirmed route.
func (p *Planner) Route(ctx context.Context, key domain.RouteKey) ([]domain.SequenceEntry, error) {
	return p.routes.Entries(ctx, key)
}

// View returns the route as currently shown, including a mutation still in
// flight.
func (p *Planner) View(key domain.RouteKey) []domain.SequenceEntry {
	return p.routes.View(key)
}

// InRoute reports whether the order is confirmed in the loaded route.
func (p *Planner) InRoute(key domain.RouteKey, orderID string) bool {
	return p.routes.Contains(key, orderID)
}

// SelectOrder appends the order to the route.
func (p *Planner) SelectOrder(ctx context.Context, key domain.RouteKey, order domain.ServiceOrder) ([]domain.SequenceEntry, error) {
	return p.AddOrder(ctx, key, order, 0)
}

// AddOrder inserts the order at position; 0 appends.
func (p *Planner) AddOrder(ctx context.Context, key domain.RouteKey, order domain.ServiceOrder, position int) ([]domain.SequenceEntry, error) {
	entries, err := p.routes.Add(ctx, key, order.ID, position)
	if err != nil {
		return nil, fmt.Errorf("select order %s: %w", order.ID, err)
	}

	p.changed(ctx, domain.EventOrderAdded, key, []string{order.ID}, []domain.ServiceOrder{order})
	return entries, nil
}

// SelectCluster appends every order of the cluster in cluster order. Orders
// already in the route are skipped. Each order succeeds or fails on its own;
// only a failure to load the route aborts the whole selection.
func (p *Planner) SelectCluster(ctx context.Context, key domain.RouteKey, cluster domain.LocationCluster) ([]SelectionOutcome, error) {
	if _, err := p.routes.Entries(ctx, key); err != nil {
		return nil, fmt.Errorf("select cluster %s: %w", cluster.Key, err)
	}

	outcomes := make([]SelectionOutcome, 0, len(cluster.Orders))
	var added []string
	var addedOrders []domain.ServiceOrder

	for _, o := range cluster.Orders {
		if p.routes.Contains(key, o.ID) {
			outcomes = append(outcomes, SelectionOutcome{OrderID: o.ID, Skipped: true})
			continue
		}

		entries, err := p.routes.Add(ctx, key, o.ID, 0)
		if err != nil {
			outcomes = append(outcomes, SelectionOutcome{OrderID: o.ID, Err: err})
			continue
		}

		seq := 0
		if i := domain.IndexOf(entries, o.ID); i >= 0 {
			seq = entries[i].Sequence
		}
		outcomes = append(outcomes, SelectionOutcome{OrderID: o.ID, Added: true, Sequence: seq})
		added = append(added, o.ID)
		addedOrders = append(addedOrders, o)
	}

	if len(added) > 0 {
		p.changed(ctx, domain.EventOrderAdded, key, added, addedOrders)
	}
	return outcomes, nil
}

// DeselectOrder removes the order from the route.
func (p *Planner) DeselectOrder(ctx context.Context, key domain.RouteKey, orderID string) ([]domain.SequenceEntry, error) {
	entries, err := p.routes.Remove(ctx, key, orderID)
	if err != nil {
		return nil, fmt.Errorf("deselect order %s: %w", orderID, err)
	}

	p.changed(ctx, domain.EventOrderRemoved, key, []string{orderID}, nil)
	return entries, nil
}

// MoveOrder reorders the route; toPosition is 1-based.
func (p *Planner) MoveOrder(ctx context.Context, key domain.RouteKey, orderID string, toPosition int) ([]domain.SequenceEntry, error) {
	entries, moved, err := p.routes.Move(ctx, key, orderID, toPosition)
	if err != nil {
		return nil, fmt.Errorf("move order %s: %w", orderID, err)
	}
	if !moved {
		return entries, nil
	}

	p.changed(ctx, domain.EventOrderMoved, key, []string{orderID}, nil)
	return entries, nil
}

// SaveRoute appends the orders in bulk. Per-order failures are data in the
// result; the error is set only when the route could not be loaded or
// re-read.
func (p *Planner) SaveRoute(ctx context.Context, key domain.RouteKey, orders []domain.ServiceOrder) (BulkResult, error) {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	res, err := p.routes.BulkSave(ctx, key, ids)
	if len(res.Saved) > 0 {
		saved := make(map[string]struct{}, len(res.Saved))
		for _, id := range res.Saved {
			saved[id] = struct{}{}
		}
		var savedOrders []domain.ServiceOrder
		for _, o := range orders {
			if _, ok := saved[o.ID]; ok {
				savedOrders = append(savedOrders, o)
			}
		}
		p.changed(ctx, domain.EventRouteSaved, key, res.Saved, savedOrders)
	}
	if err != nil {
		return res, fmt.Errorf("save route %s: %w", key, err)
	}
	return res, nil
}

// MapView makes sure every order is requested, flushes the geocode queue
// once and clusters the result.
func (p *Planner) MapView(ctx context.Context, orders []domain.ServiceOrder) ClusterResult {
	p.geocode.RequestAll(orders)
	p.geocode.Flush(ctx)
	return Cluster(orders, p.geocode.Get, p.tolerance)
}

// Board returns one column per technician from the order cache.
func (p *Planner) Board(names []string) []BoardColumn {
	return Board(names, p.orders.Get)
}

// LoadBoard fetches missing technicians, then builds the board. Fetch
// failures leave those columns unloaded and are returned alongside.
func (p *Planner) LoadBoard(ctx context.Context, names []string) ([]BoardColumn, error) {
	err := p.orders.Prefetch(ctx, names)
	return p.Board(names), err
}

// SetVisibleTechnicians schedules a prefetch for the visible technicians.
// Rapid calls coalesce: only the latest pending set is fetched.
func (p *Planner) SetVisibleTechnicians(names []string) {
	names = append([]string(nil), names...)
	p.sched.Submit(func(ctx context.Context) {
		if err := p.orders.Prefetch(ctx, names); err != nil {
			log.Printf("op=planner.prefetch technicians=%d err=%v", len(names), err)
		}
	})
}

// HandleRemoteEvent applies a route change made by another session.
func (p *Planner) HandleRemoteEvent(evt domain.RouteEvent) {
	if evt.SessionID == p.sessionID {
		return
	}

	p.orders.Invalidate(append([]string{evt.Key.TechnicianID}, evt.Technicians...)...)
	p.routes.Forget(evt.Key)
	log.Printf("op=planner.remote_event type=%s route=%s from=%s", evt.Type, evt.Key, evt.SessionID)
}

// Close stops background work and tears down the geocode cache.
func (p *Planner) Close() {
	p.cancel()
	p.sched.Wait()
	p.geocode.Close()
}

// changed invalidates the order cache for every technician touched by the
// mutation and announces it to other sessions.
func (p *Planner) changed(ctx context.Context, typ string, key domain.RouteKey, orderIDs []string, orders []domain.ServiceOrder) {
	techs := []string{key.TechnicianID}
	for _, o := range orders {
		if o.Technician != "" && !slices.Contains(techs, o.Technician) {
			techs = append(techs, o.Technician)
		}
	}
	p.orders.Invalidate(techs...)

	if p.events == nil {
		return
	}

	evt := domain.RouteEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		SessionID:   p.sessionID,
		Key:         key,
		OrderIDs:    orderIDs,
		Technicians: techs,
		At:          p.now().UTC(),
	}
	if err := p.events.Publish(ctx, evt); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("req_id=%s op=planner.publish type=%s route=%s err=%v", obs.RequestID(ctx), typ, key, err)
	}
}
