package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/atabuy/internal/kanban"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/poll"
	"gitlab.ozon.dev/qwestard/atabuy/internal/tracking"
)

var (
	ErrExit           = errors.New("exit")
	ErrUnknownCommand = errors.New("naməlum əmr. Kömək üçün 'help' yazın")
)

// Handler is the back-office console: the order board plus the tracking
// view, one command per line.
type Handler struct {
	board   *kanban.Controller
	notes   *kanban.RecordingNotifier
	tracker *tracking.Tracker
	waitCfg poll.Config
	out     io.Writer
}

func New(board *kanban.Controller, notes *kanban.RecordingNotifier, tracker *tracking.Tracker, waitCfg poll.Config, out io.Writer) *Handler {
	h := &Handler{
		board:   board,
		notes:   notes,
		tracker: tracker,
		waitCfg: waitCfg,
		out:     out,
	}
	board.OnAllowDrop(func(st models.OrderStatus) {
		fmt.Fprintf(h.out, "%s sütununa buraxmaq olar\n", models.Describe(st).Label)
	})
	return h
}

func (h *Handler) Execute(ctx context.Context, cmd string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"help":    h.printHelp,
		"exit":    func(context.Context, []string) error { return ErrExit },
		"load":    h.handleLoad,
		"board":   h.handleBoard,
		"drag":    h.handleDrag,
		"over":    h.handleOver,
		"drop":    h.handleDrop,
		"cancel":  h.handleCancel,
		"move":    h.handleMove,
		"sync":    h.handleSync,
		"notes":   h.handleNotes,
		"reasons": h.handleReasons,
		"track":   h.handleTrack,
		"wait":    h.handleWait,
	}

	fn, ok := commands[cmd]
	if !ok {
		return ErrUnknownCommand
	}
	err := fn(ctx, args)
	if !errors.Is(err, ErrExit) {
		h.flushNotes()
	}
	return err
}

func (h *Handler) printHelp(context.Context, []string) error {
	fmt.Fprintln(h.out, `Əmrlər:
  help
    - bu siyahını göstərir
  exit
    - proqramdan çıxır
  load
    - sifarişləri serverdən yükləyir
  board
    - lövhəni sütunlar üzrə göstərir
  drag <orderID>
    - sifarişi götürür
  over <status>
    - götürülmüş sifarişi sütunun üzərinə gətirir
  drop <status> [səbəb | #nömrə]
    - sifarişi sütuna buraxır (cancelled üçün səbəb)
  cancel
    - götürməni ləğv edir
  move <orderID> <status> [səbəb | #nömrə]
    - drag + drop bir addımda
  sync
    - göndərilmiş yeniləmələrin bitməsini gözləyir
  notes
    - bildirişləri göstərir
  reasons
    - ləğv səbəbləri
  track <orderID>
    - sifarişin izləmə xəttini göstərir
  wait <orderID> <status>
    - sifariş həmin mərhələyə çatana qədər yoxlayır`)
	return nil
}

func (h *Handler) handleLoad(ctx context.Context, _ []string) error {
	if err := h.board.Load(ctx); err != nil {
		return err
	}
	total := len(h.board.Unassigned()) + len(h.board.Cancelled().Orders)
	for _, col := range h.board.Columns() {
		total += len(col.Orders)
	}
	fmt.Fprintf(h.out, "%d sifariş yükləndi\n", total)
	return nil
}

func (h *Handler) handleBoard(context.Context, []string) error {
	for _, col := range h.board.Columns() {
		h.printColumn(col)
	}
	h.printColumn(h.board.Cancelled())
	if rest := h.board.Unassigned(); len(rest) > 0 {
		h.printColumn(kanban.Column{Status: models.StatusUnknown, Info: models.StatusInfo{Label: "Digər"}, Orders: rest})
	}
	return nil
}

func (h *Handler) printColumn(col kanban.Column) {
	fmt.Fprintf(h.out, "%s %s (%d)\n", col.Info.Icon, col.Info.Label, len(col.Orders))
	for _, o := range col.Orders {
		mark := " "
		if h.board.Reconciling(o.ID) {
			mark = "~"
		}
		fmt.Fprintf(h.out, "  %s %s  %-20s %-12s %8.2f ₼\n", mark, shortID(o.ID), o.CustomerName, o.TrackingNumber, o.Total)
	}
}

func (h *Handler) handleDrag(_ context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Format: drag <orderID>")
		return nil
	}
	id, err := h.resolveID(args[0])
	if err != nil {
		return err
	}
	return h.board.DragStart(id)
}

func (h *Handler) handleOver(_ context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Format: over <status>")
		return nil
	}
	st, err := parseStatus(args[0])
	if err != nil {
		return err
	}
	return h.board.DragOver(st)
}

func (h *Handler) handleDrop(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(h.out, "Format: drop <status> [səbəb | #nömrə]")
		return nil
	}
	st, err := parseStatus(args[0])
	if err != nil {
		h.board.DragCancel()
		return err
	}
	return h.board.Drop(ctx, st, reasonFrom(args[1:]))
}

func (h *Handler) handleCancel(context.Context, []string) error {
	h.board.DragCancel()
	return nil
}

func (h *Handler) handleMove(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(h.out, "Format: move <orderID> <status> [səbəb | #nömrə]")
		return nil
	}
	id, err := h.resolveID(args[0])
	if err != nil {
		return err
	}
	st, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	return h.board.Move(ctx, id, st, reasonFrom(args[2:]))
}

func (h *Handler) handleSync(context.Context, []string) error {
	h.board.Wait()
	return nil
}

func (h *Handler) handleNotes(context.Context, []string) error {
	h.flushNotes()
	return nil
}

func (h *Handler) handleReasons(context.Context, []string) error {
	for i, r := range models.CancellationReasons() {
		fmt.Fprintf(h.out, "  #%d %s\n", i+1, r)
	}
	return nil
}

func (h *Handler) handleTrack(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Format: track <orderID>")
		return nil
	}
	v, err := h.tracker.Track(ctx, args[0])
	if err != nil {
		return err
	}
	tracking.Fprint(h.out, v)
	return nil
}

func (h *Handler) handleWait(ctx context.Context, args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(h.out, "Format: wait <orderID> <status>")
		return nil
	}
	st, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	v, err := h.tracker.WaitFor(ctx, args[0], st, h.waitCfg)
	if err != nil {
		return err
	}
	tracking.Fprint(h.out, v)
	return nil
}

func (h *Handler) flushNotes() {
	if h.notes == nil {
		return
	}
	for _, n := range h.notes.Drain() {
		if n.Kind == kanban.NotifyFailure {
			fmt.Fprintf(h.out, "! %s %s: %v\n", n.Message, shortID(n.OrderID), n.Err)
			continue
		}
		fmt.Fprintf(h.out, "* %s %s\n", n.Message, shortID(n.OrderID))
	}
}

// resolveID accepts a full order id or the unique prefix printed by board.
func (h *Handler) resolveID(arg string) (string, error) {
	if _, ok := h.board.Order(arg); ok {
		return arg, nil
	}
	var matches []string
	collect := func(orders []models.Order) {
		for _, o := range orders {
			if strings.HasPrefix(o.ID, arg) {
				matches = append(matches, o.ID)
			}
		}
	}
	for _, col := range h.board.Columns() {
		collect(col.Orders)
	}
	collect(h.board.Cancelled().Orders)
	collect(h.board.Unassigned())
	sort.Strings(matches)

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: %s", kanban.ErrUnknownOrder, arg)
	default:
		return "", fmt.Errorf("ambiguous order id %q: %s", arg, strings.Join(matches, ", "))
	}
}

func parseStatus(raw string) (models.OrderStatus, error) {
	st, ok := models.ParseStatus(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownStatus, raw)
	}
	return st, nil
}

// reasonFrom joins free text, or picks a listed reason for "#n".
func reasonFrom(args []string) string {
	text := strings.TrimSpace(strings.Join(args, " "))
	if n, err := strconv.Atoi(strings.TrimPrefix(text, "#")); err == nil && strings.HasPrefix(text, "#") {
		reasons := models.CancellationReasons()
		if n >= 1 && n <= len(reasons) {
			return reasons[n-1]
		}
	}
	return text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
