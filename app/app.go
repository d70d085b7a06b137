// Package app provides a reference fix.Application: an embedder that logs
// session lifecycle events and hands application-level messages off to a
// caller-supplied handler, tagging each with a correlation ID.
package app

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/glennswest/fixgw/fix"
)

// MessageHandler receives one fully parsed application-level message: the
// MsgType bytes and its non-header tags, plus a correlation ID unique to
// this message for downstream log correlation.
type MessageHandler func(correlationID string, msgType []byte, tags map[uint32][]byte)

// Counterparty is a reference fix.Application for one counterparty
// connection: it logs Logon/Logout events through logrus, delegates
// application messages to Handler, and recognizes the MsgTypes in
// AppMsgTypes.
type Counterparty struct {
	Name         string
	SenderCompID string
	TargetCompID string
	HeartBtInt   string
	AppMsgTypes  map[string]bool
	Handler      MessageHandler

	logger *log.Entry
}

// New builds a Counterparty application with the given name (used only for
// log correlation) and the set of application MsgType codes it accepts.
func New(name, senderCompID, targetCompID, heartBtInt string, appMsgTypes []string, handler MessageHandler) *Counterparty {
	set := make(map[string]bool, len(appMsgTypes))
	for _, t := range appMsgTypes {
		set[t] = true
	}
	return &Counterparty{
		Name:         name,
		SenderCompID: senderCompID,
		TargetCompID: targetCompID,
		HeartBtInt:   heartBtInt,
		AppMsgTypes:  set,
		Handler:      handler,
		logger:       log.WithField("counterparty", name),
	}
}

func (c *Counterparty) OnRequest(req fix.SessionRequest, conn *fix.Connection) {
	switch {
	case req.Direction == fix.DirOut && req.Kind == fix.ReqLogon:
		conn.OutStream().TagValue(fix.TagSenderCompID, []byte(c.SenderCompID))
		conn.OutStream().TagValue(fix.TagTargetCompID, []byte(c.TargetCompID))
		conn.OutStream().TagValue(fix.TagHeartBtInt, []byte(c.HeartBtInt))
		c.logger.Info("sending logon")
		conn.RequestDone(nil)
	case req.Direction == fix.DirOut && req.Kind == fix.ReqLogout:
		c.logger.Info("sending logout")
		conn.RequestDone(nil)
	case req.Direction == fix.DirIn && req.Kind == fix.ReqLogon:
		c.logger.WithField("role", conn.Role()).Info("logon accepted, session established")
	case req.Direction == fix.DirIn && req.Kind == fix.ReqLogout:
		c.logger.Info("peer logged out, session ended")
	}
}

func (c *Counterparty) OnMessagePending(conn *fix.Connection) {
	conn.ReadFixMessage(c)
}

func (c *Counterparty) InStream() fix.Sink {
	return &appSink{owner: c}
}

func (c *Counterparty) IsAppMsgType(raw []byte) bool {
	return c.AppMsgTypes[string(raw)]
}

func (c *Counterparty) OnError(err error, conn *fix.Connection) {
	c.logger.WithError(err).Error("session terminated")
}

// appSink accumulates one application message's fields and dispatches to
// the owning Counterparty's Handler once MessageDone fires successfully.
type appSink struct {
	owner   *Counterparty
	msgType []byte
	tags    map[uint32][]byte
}

func (s *appSink) MessageStart(msgType fix.MsgType, isReplayable bool) {
	s.msgType = append([]byte(nil), msgType.Raw...)
	s.tags = make(map[uint32][]byte, 16)
}

func (s *appSink) TagValue(tag uint32, value []byte) {
	s.tags[tag] = append([]byte(nil), value...)
}

func (s *appSink) MessageDone(err error) {
	if err != nil {
		s.owner.logger.WithError(err).Warn("application message failed checksum validation")
		return
	}
	if s.owner.Handler == nil {
		return
	}
	s.owner.Handler(uuid.NewString(), s.msgType, s.tags)
}
