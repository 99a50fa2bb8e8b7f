// Package router turns incoming Telegram updates into watch-list actions.
//
// The front-end is menu driven: /start shows an inline keyboard, button
// presses arrive as callbacks with "shop:<action>[:payload]" data, and the
// add-item flow parks the user in an awaiting-text state until the next
// message supplies the item name.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "dropwatch/internal/transport"
	"dropwatch/internal/watch"
	"dropwatch/internal/watcher"
	logx "dropwatch/pkg/logx"
	"dropwatch/pkg/tgui"
)

const (
	cbScope = "shop"

	actionMenu   = "menu"
	actionAdd    = "add"
	actionRemove = "remove"
	actionDelete = "del"
	actionCheck  = "check"
	actionImage  = "image"
	actionStop   = "stop"

	requestTimeout = 30 * time.Second
	queueCap       = 64
	workerCount    = 4
)

// ShopImageURL returns the URL of the shop image for the given day.
// Injected so tests do not depend on the calendar.
type ShopImageURL func(now time.Time) string

type Router struct {
	adapter kit.Adapter
	svc     *watcher.Service
	imgURL  ShopImageURL
	log     logx.Logger

	queue chan func()

	// pendingAdd holds users whose next text message is an item name.
	mu         sync.Mutex
	pendingAdd map[int64]struct{}

	wg sync.WaitGroup
}

func New(adapter kit.Adapter, svc *watcher.Service, imgURL ShopImageURL, log logx.Logger) *Router {
	return &Router{
		adapter:    adapter,
		svc:        svc,
		imgURL:     imgURL,
		log:        log,
		queue:      make(chan func(), queueCap),
		pendingAdd: map[int64]struct{}{},
	}
}

// Run consumes updates until ctx is cancelled. It owns a small worker pool
// so one slow Telegram call does not stall every other user.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for i := 0; i < workerCount; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case fn := <-r.queue:
					fn()
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case up := <-updates:
			r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up kit.Update) {
	var fn func(context.Context)
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		msg := *up.Message
		fn = func(c context.Context) { r.handleMessage(c, msg) }
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		cb := *up.Callback
		fn = func(c context.Context) { r.handleCallback(c, cb) }
	default:
		return
	}

	task := func() {
		c, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("handler panic", logx.Any("panic", rec))
			}
		}()
		fn(c)
	}

	select {
	case r.queue <- task:
	default:
		r.log.Warn("update queue full; update dropped", logx.String("kind", string(up.Kind)))
	}
}

func (r *Router) handleMessage(ctx context.Context, msg kit.Message) {
	user := watch.UserID(msg.ChatID)

	if msg.Text == "/start" {
		r.clearPending(msg.ChatID)
		r.svc.Ensure(user)
		r.sendMenu(ctx, msg.ChatID, "Hi! I watch the item shop for you. What would you like to do?")
		return
	}

	if r.takePending(msg.ChatID) {
		name, outcome, started := r.svc.Watch(user, msg.Text)
		var text string
		switch {
		case outcome == watcher.ItemAlreadyWatched:
			text = "“" + name + "” is already on your watch list."
		case started:
			text = "Added “" + name + "”. I'll check the shop for it every day and ping you when it shows up."
		default:
			text = "Added “" + name + "” to your watch list."
		}
		r.sendMenu(ctx, msg.ChatID, text)
		return
	}

	r.sendMenu(ctx, msg.ChatID, "Use the buttons below, or /start.")
}

func (r *Router) handleCallback(ctx context.Context, cb kit.Callback) {
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok || scope != cbScope {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	user := watch.UserID(cb.ChatID)
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch action {
	case actionMenu:
		r.clearPending(cb.ChatID)
		r.editMenu(ctx, ref, "What would you like to do?")

	case actionAdd:
		r.setPending(cb.ChatID)
		r.edit(ctx, ref, "Send me the item name to watch.", backMarkup())

	case actionRemove:
		r.renderRemoveList(ctx, ref, user)

	case actionDelete:
		idx, err := strconv.Atoi(payload)
		list := r.svc.ListWatched(user)
		if err == nil && idx >= 0 && idx < len(list) {
			name, _ := r.svc.Unwatch(user, list[idx])
			_ = r.adapter.AnswerCallback(ctx, cb.ID, "Removed "+name)
		} else {
			_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		}
		r.renderRemoveList(ctx, ref, user)
		return

	case actionCheck:
		res := r.svc.CheckNow(ctx, user)
		r.editMenu(ctx, ref, renderCheck(res))

	case actionImage:
		if _, err := r.adapter.SendPhoto(ctx, kit.ChatTarget{ChatID: cb.ChatID}, r.imgURL(time.Now()), "Today's item shop"); err != nil {
			r.log.Warn("shop image send failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
			r.editMenu(ctx, ref, "Couldn't fetch the shop image right now.")
		}

	case actionStop:
		if r.svc.StopPolling(user) == watcher.Stopped {
			r.editMenu(ctx, ref, "Okay, I stopped checking the shop for you.")
		} else {
			r.editMenu(ctx, ref, "I wasn't checking the shop for you.")
		}

	default:
		r.log.Debug("unknown callback action", logx.String("action", action))
	}

	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
}

func (r *Router) renderRemoveList(ctx context.Context, ref kit.MessageRef, user watch.UserID) {
	list := r.svc.ListWatched(user)
	if len(list) == 0 {
		r.editMenu(ctx, ref, "Your watch list is empty.")
		return
	}
	kb := tgui.NewInline()
	for i := 0; i < len(list); i += 2 {
		if i+1 < len(list) {
			kb.Row(delBtn(list[i], i), delBtn(list[i+1], i+1))
		} else {
			kb.Row(delBtn(list[i], i))
		}
	}
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data(cbScope, actionMenu, "")))
	r.edit(ctx, ref, "Tap an item to stop watching it:", kb.Markup())
}

func delBtn(name string, idx int) tele.Btn {
	return tgui.Btn("❌ "+name, tgui.Data(cbScope, actionDelete, strconv.Itoa(idx)))
}

func menuMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("➕ Add item", tgui.Data(cbScope, actionAdd, ""))).
		Row(tgui.Btn("➖ Remove item", tgui.Data(cbScope, actionRemove, ""))).
		Row(tgui.Btn("🔍 Check now", tgui.Data(cbScope, actionCheck, ""))).
		Row(tgui.Btn("🛒 Show shop image", tgui.Data(cbScope, actionImage, ""))).
		Row(tgui.Btn("🛑 Stop checking", tgui.Data(cbScope, actionStop, ""))).
		Markup()
}

func backMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("⬅️ Back", tgui.Data(cbScope, actionMenu, ""))).
		Markup()
}

func renderCheck(res watcher.CheckResult) string {
	switch res.Status {
	case watcher.StatusNoWatchedItems:
		return "Your watch list is empty. Add an item first."
	case watcher.StatusFetchFailed:
		return "Couldn't reach the item shop. Try again in a bit."
	}
	if len(res.Items) == 0 {
		return "None of your items are in the shop right now."
	}
	return "In the shop right now: " + strings.Join(res.Items, ", ") + "."
}

func (r *Router) sendMenu(ctx context.Context, chatID int64, text string) {
	_, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text,
		&kit.SendOptions{ReplyMarkupAdapter: menuMarkup()})
	if err != nil {
		r.log.Warn("menu send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) editMenu(ctx context.Context, ref kit.MessageRef, text string) {
	r.edit(ctx, ref, text, menuMarkup())
}

func (r *Router) edit(ctx context.Context, ref kit.MessageRef, text string, rm *tele.ReplyMarkup) {
	err := r.adapter.EditText(ctx, ref, text, &kit.SendOptions{ReplyMarkupAdapter: rm})
	if err != nil {
		// Edits fail when the message is gone or unchanged; fall back to a send.
		if _, err2 := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID}, text,
			&kit.SendOptions{ReplyMarkupAdapter: rm}); err2 != nil {
			r.log.Warn("edit and send both failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err2))
		}
	}
}

func (r *Router) setPending(chatID int64) {
	r.mu.Lock()
	r.pendingAdd[chatID] = struct{}{}
	r.mu.Unlock()
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	delete(r.pendingAdd, chatID)
	r.mu.Unlock()
}

// takePending reports and consumes the awaiting-item state in one step.
func (r *Router) takePending(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendingAdd[chatID]; !ok {
		return false
	}
	delete(r.pendingAdd, chatID)
	return true
}
