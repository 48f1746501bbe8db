package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types, carried in Engine.IO message packets.
const (
	packetConnect      byte = '0'
	packetDisconnect   byte = '1'
	packetEvent        byte = '2'
	packetAck          byte = '3'
	packetConnectError byte = '4'
	packetBinaryEvent  byte = '5'
	packetBinaryAck    byte = '6'
)

const (
	engineProtocol   = "4"
	defaultNamespace = "/"
	noAck            = -1
)

var errMalformedPacket = errors.New("malformed socket.io packet")

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// engineError is the body of a rejected handshake request.
type engineError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Engine.IO handshake error codes.
const (
	errTransportUnknown     = 0
	errUnknownSID           = 1
	errUnsupportedProtocol  = 5
	msgTransportUnknown     = "Transport unknown"
	msgUnknownSID           = "Session ID unknown"
	msgUnsupportedProtocol  = "Unsupported protocol version"
	msgInvalidNamespace     = "Invalid namespace"
	msgBinaryNotSupported   = "binary events are not supported"
	msgInvalidEventArgument = "invalid event: expected [name, ...args]"
)

// packet is a decoded Socket.IO packet.
type packet struct {
	Type        byte
	Namespace   string
	Attachments int
	AckID       int
	Data        json.RawMessage
}

// decodePacket parses <type>[<attachments>-][<namespace>,][<ack id>][<json>].
func decodePacket(s string) (packet, error) {
	if s == "" || s[0] < packetConnect || s[0] > packetBinaryAck {
		return packet{}, errMalformedPacket
	}
	p := packet{Type: s[0], Namespace: defaultNamespace, AckID: noAck}
	rest := s[1:]

	if p.Type == packetBinaryEvent || p.Type == packetBinaryAck {
		dash := strings.IndexByte(rest, '-')
		if dash < 1 {
			return packet{}, errMalformedPacket
		}
		n, err := strconv.Atoi(rest[:dash])
		if err != nil {
			return packet{}, errMalformedPacket
		}
		p.Attachments = n
		rest = rest[dash+1:]
	}

	if strings.HasPrefix(rest, "/") {
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			p.Namespace, rest = rest[:comma], rest[comma+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return packet{}, errMalformedPacket
		}
		p.AckID = id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return packet{}, errMalformedPacket
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// encode returns p as an Engine.IO message packet.
func (p packet) encode() []byte {
	var b strings.Builder
	b.WriteByte(engineMessage)
	b.WriteByte(p.Type)
	if p.Namespace != "" && p.Namespace != defaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.AckID >= 0 {
		b.WriteString(strconv.Itoa(p.AckID))
	}
	b.Write(p.Data)
	return []byte(b.String())
}

// eventPacket builds the EVENT packet for emit(name, data).
func eventPacket(name string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal([]interface{}{name, data})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	return packet{Type: packetEvent, AckID: noAck, Data: raw}.encode(), nil
}

// eventArgs splits the data of an EVENT packet into its name and arguments.
func eventArgs(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return "", nil, errors.New(msgInvalidEventArgument)
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, errors.New(msgInvalidEventArgument)
	}
	return name, items[1:], nil
}
