package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"errors"
	"slices"
	"testing"
	"time"
)

type plannerFixture struct {
	backend *fakeBackend
	source  *fakeOrderSource
	geo     *fakeGeocoder
	events  *recordingPublisher
	orders  *OrderCache
	planner *Planner
}

func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()

	f := &plannerFixture{
		backend: newFakeBackend(),
		source:  newFakeOrderSource(),
		geo: &fakeGeocoder{coords: map[string]domain.Coordinates{
			"Av. Paulista, 1000": {Lat: -23.5614, Lng: -46.6559},
			"Rua Augusta, 500":   {Lat: -23.5535, Lng: -46.6540},
		}},
		events: &recordingPublisher{},
	}
	f.orders = NewOrderCache(f.source, 4)
	f.planner = NewPlanner(
		NewGeocodeCache(f.geo, domain.BrazilBounds),
		f.orders,
		NewSequenceStore(f.backend, 4),
		f.events,
		PlannerOptions{
			SessionID:    "session-a",
			SkipWeekends: true,
			Now:          func() time.Time { return time.Date(2024, 6, 7, 15, 0, 0, 0, time.UTC) },
		},
	)
	t.Cleanup(f.planner.Close)
	return f
}

// warm caches both technicians so invalidation is observable.
func (f *plannerFixture) warm(t *testing.T, names ...string) {
	t.Helper()
	if err := f.orders.Prefetch(context.Background(), names); err != nil {
		t.Fatalf("prefetch: %v", err)
	}
}

func TestPlannerDefaultForecastSkipsWeekend(t *testing.T) {
	f := newPlannerFixture(t)
	if got := f.planner.Key("Ana", "").ForecastDate; got != "2024-06-10" {
		t.Fatalf("forecast = %s, want Monday 2024-06-10", got)
	}
}

func TestPlannerSelectOrderInvalidatesAndPublishes(t *testing.T) {
	f := newPlannerFixture(t)
	f.warm(t, "Ana", "Bruno", "Carla")
	key := f.planner.Key("Ana", "")

	o := domain.ServiceOrder{ID: "O5", Address: "Av. Paulista, 1000", Technician: "Bruno"}
	entries, err := f.planner.SelectOrder(context.Background(), key, o)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	assertRoute(t, entries, "O5=1")

	if !f.planner.InRoute(key, "O5") {
		t.Fatal("selected order should be in route")
	}
	if _, ok := f.orders.Get("Ana"); ok {
		t.Fatal("route technician must be invalidated")
	}
	if _, ok := f.orders.Get("Bruno"); ok {
		t.Fatal("previous technician must be invalidated")
	}
	if _, ok := f.orders.Get("Carla"); !ok {
		t.Fatal("unrelated technician must stay cached")
	}

	evts := f.events.all()
	if len(evts) != 1 {
		t.Fatalf("events = %d, want 1", len(evts))
	}
	evt := evts[0]
	if evt.Type != domain.EventOrderAdded || evt.SessionID != "session-a" || evt.Key != key || evt.ID == "" {
		t.Fatalf("event = %+v", evt)
	}
	if !slices.Equal(evt.Technicians, []string{"Ana", "Bruno"}) {
		t.Fatalf("event technicians = %v", evt.Technicians)
	}
}

func TestPlannerFailedSelectionChangesNothing(t *testing.T) {
	f := newPlannerFixture(t)
	f.warm(t, "Ana")
	f.backend.fail = failWhen("add", "O5")
	key := f.planner.Key("Ana", "")

	_, err := f.planner.SelectOrder(context.Background(), key, domain.ServiceOrder{ID: "O5"})
	if !errors.Is(err, domain.ErrSequenceConflict) {
		t.Fatalf("err = %v, want ErrSequenceConflict", err)
	}
	if f.planner.InRoute(key, "O5") {
		t.Fatal("membership must be untouched on failure")
	}
	if _, ok := f.orders.Get("Ana"); !ok {
		t.Fatal("cache must not be invalidated on failure")
	}
	if len(f.events.all()) != 0 {
		t.Fatal("no event on failure")
	}
}

func TestPlannerSelectClusterReportsPerOrder(t *testing.T) {
	f := newPlannerFixture(t)
	key := f.planner.Key("Ana", "")
	f.backend.seed(key, "O2")
	f.backend.fail = failWhen("add", "O3")

	cluster := domain.LocationCluster{Key: "k", Orders: []domain.ServiceOrder{{ID: "O1"}, {ID: "O2"}, {ID: "O3"}, {ID: "O4"}}}
	outcomes, err := f.planner.SelectCluster(context.Background(), key, cluster)
	if err != nil {
		t.Fatalf("select cluster: %v", err)
	}

	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	if !outcomes[0].Added || outcomes[0].Sequence != 2 {
		t.Fatalf("O1 = %+v, want added at 2", outcomes[0])
	}
	if !outcomes[1].Skipped {
		t.Fatalf("O2 = %+v, want skipped", outcomes[1])
	}
	if outcomes[2].Added || !errors.Is(outcomes[2].Err, domain.ErrSequenceConflict) {
		t.Fatalf("O3 = %+v, want conflict", outcomes[2])
	}
	if !outcomes[3].Added || outcomes[3].Sequence != 3 {
		t.Fatalf("O4 = %+v, want added at 3", outcomes[3])
	}

	entries, _ := f.planner.Route(context.Background(), key)
	assertRoute(t, entries, "O2=1", "O1=2", "O4=3")

	evts := f.events.all()
	if len(evts) != 1 || !slices.Equal(evts[0].OrderIDs, []string{"O1", "O4"}) {
		t.Fatalf("events = %+v", evts)
	}
}

func TestPlannerDeselectAndMove(t *testing.T) {
	f := newPlannerFixture(t)
	key := f.planner.Key("Ana", "")
	f.backend.seed(key, "O1", "O2", "O3")
	ctx := context.Background()

	entries, err := f.planner.MoveOrder(ctx, key, "O3", 1)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	assertRoute(t, entries, "O3=1", "O1=2", "O2=3")

	entries, err = f.planner.DeselectOrder(ctx, key, "O1")
	if err != nil {
		t.Fatalf("deselect: %v", err)
	}
	assertRoute(t, entries, "O3=1", "O2=2")

	if _, err := f.planner.MoveOrder(ctx, key, "O2", 2); err != nil {
		t.Fatalf("no-op move: %v", err)
	}

	var types []string
	for _, e := range f.events.all() {
		types = append(types, e.Type)
	}
	if !slices.Equal(types, []string{domain.EventOrderMoved, domain.EventOrderRemoved}) {
		t.Fatalf("event types = %v", types)
	}
}

func TestPlannerMoveToCurrentPositionOnColdRoute(t *testing.T) {
	f := newPlannerFixture(t)
	f.warm(t, "Ana")
	key := f.planner.Key("Ana", "")
	f.backend.seed(key, "O1", "O2", "O3")

	entries, err := f.planner.MoveOrder(context.Background(), key, "O2", 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	assertRoute(t, entries, "O1=1", "O2=2", "O3=3")

	if evts := f.events.all(); len(evts) != 0 {
		t.Fatalf("events = %+v, want none", evts)
	}
	if _, ok := f.orders.Get("Ana"); !ok {
		t.Fatal("order cache invalidated by a move that changed nothing")
	}
}

func TestPlannerSaveRoute(t *testing.T) {
	f := newPlannerFixture(t)
	key := f.planner.Key("Ana", "")
	f.backend.fail = failWhen("add", "O2")

	res, err := f.planner.SaveRoute(context.Background(), key, []domain.ServiceOrder{{ID: "O1"}, {ID: "O2"}, {ID: "O3", Technician: "Bruno"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !slices.Equal(res.Saved, []string{"O1", "O3"}) || !slices.Equal(res.Failed, []string{"O2"}) {
		t.Fatalf("result = %+v", res)
	}

	evts := f.events.all()
	if len(evts) != 1 || evts[0].Type != domain.EventRouteSaved || !slices.Equal(evts[0].Technicians, []string{"Ana", "Bruno"}) {
		t.Fatalf("events = %+v", evts)
	}
}

func TestPlannerMapViewFlushesOnce(t *testing.T) {
	f := newPlannerFixture(t)
	orders := []domain.ServiceOrder{
		{ID: "O1", Address: "Av. Paulista, 1000"},
		{ID: "O2", Address: "Av. Paulista, 1000"},
		{ID: "O3", Address: "Rua Augusta, 500"},
		{ID: "O4", Address: ""},
	}

	res := f.planner.MapView(context.Background(), orders)

	if calls, items := f.geo.counts(); calls != 1 || items != 2 {
		t.Fatalf("calls=%d items=%d, want 1 and 2", calls, items)
	}
	if len(res.InRegion) != 2 {
		t.Fatalf("clusters = %+v", res.InRegion)
	}
	if len(res.Unlocated) != 1 || res.Unlocated[0].ID != "O4" {
		t.Fatalf("unlocated = %+v", res.Unlocated)
	}

	f.planner.MapView(context.Background(), orders)
	if calls, _ := f.geo.counts(); calls != 1 {
		t.Fatalf("second map view called the provider again: %d", calls)
	}
}

func TestPlannerHandleRemoteEvent(t *testing.T) {
	f := newPlannerFixture(t)
	key := f.planner.Key("Ana", "")
	f.backend.seed(key, "O1")
	f.warm(t, "Ana", "Bruno")
	ctx := context.Background()

	if _, err := f.planner.Route(ctx, key); err != nil {
		t.Fatalf("route: %v", err)
	}

	f.planner.HandleRemoteEvent(domain.RouteEvent{SessionID: "session-a", Key: key})
	if _, ok := f.orders.Get("Ana"); !ok {
		t.Fatal("own events must be ignored")
	}

	f.backend.seed(key, "O1", "O7")
	f.planner.HandleRemoteEvent(domain.RouteEvent{SessionID: "session-b", Key: key, Technicians: []string{"Ana", "Bruno"}})

	if _, ok := f.orders.Get("Bruno"); ok {
		t.Fatal("remote event must invalidate listed technicians")
	}
	if f.planner.InRoute(key, "O1") {
		t.Fatal("stale route snapshot must be dropped")
	}
	entries, err := f.planner.Route(ctx, key)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	assertRoute(t, entries, "O1=1", "O7=2")
}

func TestPlannerSetVisibleTechniciansPrefetches(t *testing.T) {
	f := newPlannerFixture(t)

	f.planner.SetVisibleTechnicians([]string{"Ana", "Bruno"})
	f.planner.sched.Wait()

	cols := f.planner.Board([]string{"Ana", "Bruno"})
	for _, c := range cols {
		if !c.Loaded {
			t.Fatalf("column %s not loaded", c.Technician)
		}
	}
}
