// Package bridge is the composition root (spec.md §9's explicit-Bridge
// design note, SPEC_FULL.md §2 C11): it owns every piece of state the
// source module kept as module-level globals (the shared ledger, the
// wsManagers map, the chat-cache memory, the shared logger) and wires one
// Subscription Manager / Pipeline / Deliverer / Cache per configured
// account. Grounded on the teacher's own composition style in
// cmd/server/main.go (construct services, wire handlers, start background
// goroutines, wait on a signal channel for graceful shutdown) adapted from
// an HTTP server's request/response lifecycle to a long-running
// per-account subscription supervisor.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclaw/ringcentral-bridge/internal/chatcache"
	"github.com/openclaw/ringcentral-bridge/internal/grouplog"
	"github.com/openclaw/ringcentral-bridge/internal/ledger"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/metrics"
	"github.com/openclaw/ringcentral-bridge/internal/outbound"
	"github.com/openclaw/ringcentral-bridge/internal/pipeline"
	"github.com/openclaw/ringcentral-bridge/internal/platform"
	"github.com/openclaw/ringcentral-bridge/internal/rcauth"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
	"github.com/openclaw/ringcentral-bridge/internal/runtime"
	"github.com/openclaw/ringcentral-bridge/internal/subscription"
)

// accountRuntime bundles the live components one account's subscription
// loop is built from.
type accountRuntime struct {
	manager  *subscription.Manager
	cache    *chatcache.Cache
	deliverer *outbound.Deliverer
	pipeline *pipeline.Pipeline
}

// Bridge holds every piece of process-wide shared state explicitly
// (spec.md §9), in place of the source module's globals: a single ledger
// per account is still process-local state, but it is reachable only
// through this value, never a package-level variable.
type Bridge struct {
	log        *logger.Logger
	collab     runtime.Collaborators
	metrics    *metrics.Registry

	mu       sync.Mutex
	accounts map[string]*accountRuntime // keyed by rcconfig.AccountConfig.Key()
}

// New constructs a Bridge. collab supplies the host agent-runtime
// contracts (internal/runtime); pass runtime.DefaultCollaborators() to run
// standalone.
func New(log *logger.Logger, collab runtime.Collaborators, reg *metrics.Registry) *Bridge {
	return &Bridge{
		log:      log,
		collab:   collab,
		metrics:  reg,
		accounts: make(map[string]*accountRuntime),
	}
}

// StartAccount builds and starts the full per-account stack (C1-C8) for
// one enabled AccountConfig and registers it under its singleton key
// (§4.3: "per-account singleton keyed by (clientId, server, jwtPrefix)").
// Starting an already-running key returns an error; a credential change that
// alters the key starts a fresh, independent stack alongside any still
// converging shutdown of the old one (the caller is responsible for
// stopping the old stack first via Stop).
func (b *Bridge) StartAccount(ctx context.Context, account *rcconfig.AccountConfig) (stop func(), err error) {
	key := account.Key()

	b.mu.Lock()
	if _, exists := b.accounts[key]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("bridge: account %q already started under key %q", account.AccountID, key)
	}
	b.mu.Unlock()

	accountLog := b.log.WithComponent("bridge").With("account_id", account.AccountID)

	session := rcauth.New(account.Credentials, nil)
	client := platform.New(session, account.AccountID, b.log)
	ledg := ledger.New()
	groupLog := grouplog.New(account.Workspace)
	cache := chatcache.New(client, b.log, account.Workspace, account.AccountID)

	rt := &accountRuntime{cache: cache}

	var manager *subscription.Manager
	deliverer := outbound.New(client, ledg, b.collab.Media, b.collab.Chunker, outboundNotifierFunc(func() {
		if manager != nil {
			manager.RecordOutbound()
		}
	}), b.log, account)
	rt.deliverer = deliverer

	ownerIDFn := func() string {
		if manager == nil {
			return ""
		}
		return manager.OwnerID()
	}

	pl := pipeline.New(account, client, ledg, groupLog, b.collab, deliverer, ownerIDFn, b.log)
	rt.pipeline = pl

	statusSink := func(status rctypes.Status) {
		if b.metrics != nil {
			b.metrics.Observe(status)
		}
	}

	manager = subscription.New(account, client, session, b.log, func(evCtx context.Context, accountID string, event rctypes.InboundEvent) {
		if handleErr := pl.Handle(evCtx, event); handleErr != nil {
			accountLog.Debug("inbound event dropped", "error", handleErr)
		}
	}, statusSink)
	rt.manager = manager

	b.mu.Lock()
	b.accounts[key] = rt
	b.mu.Unlock()

	stopManager := manager.Start(ctx)
	accountLog.Info("account subscription started")

	return func() {
		stopManager()
		b.mu.Lock()
		delete(b.accounts, key)
		b.mu.Unlock()
	}, nil
}

// outboundNotifierFunc adapts a plain func to outbound.OutboundNotifier.
type outboundNotifierFunc func()

func (f outboundNotifierFunc) RecordOutbound() { f() }

// RefreshChatCache triggers an on-demand C6 refresh for one running
// account (spec.md §9: periodic automatic refresh stays disabled; only a
// manual refresh is exposed).
func (b *Bridge) RefreshChatCache(ctx context.Context, accountKey string) (chatcache.RefreshResult, error) {
	b.mu.Lock()
	rt, ok := b.accounts[accountKey]
	b.mu.Unlock()
	if !ok {
		return chatcache.RefreshResult{}, fmt.Errorf("bridge: no running account under key %q", accountKey)
	}
	return rt.cache.Refresh(ctx)
}

// StartAll starts every enabled account in file and returns a single
// aggregate stop function that shuts all of them down. If any account
// fails to start, the already-started ones are stopped before returning
// the error.
func (b *Bridge) StartAll(ctx context.Context, file *rcconfig.File) (stop func(), err error) {
	var stops []func()
	for i := range file.Accounts {
		account := &file.Accounts[i]
		if !account.Enabled {
			continue
		}
		accountStop, startErr := b.StartAccount(ctx, account)
		if startErr != nil {
			for _, s := range stops {
				s()
			}
			return nil, fmt.Errorf("starting account %q: %w", account.AccountID, startErr)
		}
		stops = append(stops, accountStop)
	}

	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}
