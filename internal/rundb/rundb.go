// Package rundb persists Controller lifecycle transitions and periodic
// status snapshots to ClickHouse.
package rundb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "daqcore"

// StateTransition records one Controller state change.
type StateTransition struct {
	RunName   string
	From      string
	To        string
	Timestamp time.Time
}

// StatusRecord records one periodic status snapshot.
type StatusRecord struct {
	RunName         string
	State           string
	BytesRead       int64
	BufferBytes     int64
	Timestamp       time.Time
}

// Conn is a ClickHouse-backed run database connection: channels fed by
// non-blocking Record* calls and drained by one goroutine.
type Conn struct {
	conn clickhouse.Conn
	err  error

	transitions chan StateTransition
	statuses    chan StatusRecord

	sync.WaitGroup
}

// IsConnected reports whether the connection is usable.
func (c *Conn) IsConnected() bool {
	return c != nil && c.conn != nil && c.err == nil
}

// Connect opens a ClickHouse connection using the DAQCORE_DB_USER/
// DAQCORE_DB_PASSWORD environment variables for credentials.
func Connect(addr string) *Conn {
	c := &Conn{}
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("DAQCORE_DB_USER"),
		Password: os.Getenv("DAQCORE_DB_PASSWORD"),
	}
	opt := clickhouse.Options{
		Addr: []string{addr},
		Auth: auth,
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		c.err = err
		return c
	}
	if err := conn.Ping(context.Background()); err != nil {
		c.err = err
		return c
	}
	c.conn = conn
	c.transitions = make(chan StateTransition, 64)
	c.statuses = make(chan StatusRecord, 64)
	c.Add(1)
	return c
}

// Run drains the transition/status channels until abort is closed. Run
// in its own goroutine.
func (c *Conn) Run(abort <-chan struct{}) {
	defer c.Done()
	for {
		select {
		case <-abort:
			c.Disconnect()
			return
		case t := <-c.transitions:
			c.insertTransition(t)
		case s := <-c.statuses:
			c.insertStatus(s)
		}
	}
}

// RecordTransition enqueues a state transition. Non-blocking;
// transitions are dropped (with a log, left to the caller) if the
// connection is not live.
func (c *Conn) RecordTransition(t StateTransition) bool {
	if !c.IsConnected() {
		return false
	}
	select {
	case c.transitions <- t:
		return true
	default:
		return false
	}
}

// RecordStatus enqueues a status snapshot, same non-blocking contract as
// RecordTransition.
func (c *Conn) RecordStatus(s StatusRecord) bool {
	if !c.IsConnected() {
		return false
	}
	select {
	case c.statuses <- s:
		return true
	default:
		return false
	}
}

func (c *Conn) insertTransition(t StateTransition) {
	ctx := context.Background()
	const nowait = false
	if err := c.conn.AsyncInsert(ctx, `INSERT INTO controller_transitions VALUES (?, ?, ?, ?)`, nowait,
		t.RunName, t.From, t.To, t.Timestamp.Format("2006-01-02 15:04:05.000000"),
	); err != nil {
		c.err = fmt.Errorf("insert transition: %w", err)
	}
}

func (c *Conn) insertStatus(s StatusRecord) {
	ctx := context.Background()
	const nowait = false
	if err := c.conn.AsyncInsert(ctx, `INSERT INTO controller_status VALUES (?, ?, ?, ?, ?)`, nowait,
		s.RunName, s.State, s.BytesRead, s.BufferBytes, s.Timestamp.Format("2006-01-02 15:04:05.000000"),
	); err != nil {
		c.err = fmt.Errorf("insert status: %w", err)
	}
}

// Disconnect closes the underlying ClickHouse connection.
func (c *Conn) Disconnect() {
	if c.IsConnected() {
		c.conn.Close()
	}
}
