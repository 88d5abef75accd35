// Package lcdproc emulates an LCDproc display server for MMDVMHost.
//
// MMDVMHost can drive an LCD through the LCDproc TCP protocol. Instead of a
// physical panel this server keeps a virtual screen buffer, so the dashboard
// gets the structured display data (mode, callsign, timer, RSSI) that is
// awkward to recover from logs. Commands are null-terminated strings;
// responses are null-terminated as well.
package lcdproc

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	displayWidth  = 20
	displayHeight = 4
)

// DisplaySink receives rendered display lines on every update.
type DisplaySink interface {
	SetDisplay(lines []string)
}

type widget struct {
	typ  string
	x, y int
	text string
}

type screen struct {
	name     string
	priority int
	widgets  map[string]*widget
}

// Server is the virtual display. One MMDVMHost client at a time is
// expected; additional connections are served but share the same buffer.
type Server struct {
	addr string
	sink DisplaySink
	log  *zap.Logger

	mu           sync.Mutex
	screens      map[string]*screen
	activeScreen string
	clientName   string

	ln     net.Listener
	closed bool
}

// NewServer creates a display server bound to addr once started.
func NewServer(addr string, sink DisplaySink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		sink:    sink,
		log:     log,
		screens: make(map[string]*screen),
	}
}

// Start begins listening and accepting clients in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("lcdproc listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("lcdproc display server listening", zap.String("addr", ln.Addr().String()))

	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener; in-flight connections end on their next read.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Warn("lcdproc accept failed", zap.Error(err))
			}
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	s.log.Info("lcdproc client connected", zap.String("remote", addr))

	scanner := bufio.NewScanner(conn)
	scanner.Split(splitNull)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}
		response := s.processCommand(command)
		if _, err := conn.Write(append([]byte(response), 0)); err != nil {
			s.log.Debug("lcdproc write failed", zap.Error(err))
			break
		}
	}

	s.log.Info("lcdproc client disconnected", zap.String("remote", addr))
}

// splitNull is a bufio.SplitFunc for null-terminated commands.
func splitNull(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		return idx + 1, data[:idx], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var (
	widgetAddRe = regexp.MustCompile(`^widget_add (\S+) (\S+) (\S+)`)
	widgetSetRe = regexp.MustCompile(`^widget_set (\S+) (\S+) (\d+) (\d+) "(.*)"`)
	widgetDelRe = regexp.MustCompile(`^widget_del (\S+) (\S+)`)
)

func (s *Server) processCommand(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case command == "hello":
		return fmt.Sprintf("connect LCDproc 0.5.9 protocol 0.3.1 lcd wid %d hgt %d cellwid 5 cellhgt 8",
			displayWidth, displayHeight)

	case command == "bye", command == "noop":
		return "success"

	case strings.HasPrefix(command, "client_set name "):
		s.clientName = strings.TrimPrefix(command, "client_set name ")
		return "success"

	case strings.HasPrefix(command, "screen_add "):
		id := strings.TrimPrefix(command, "screen_add ")
		s.screens[id] = &screen{priority: 5, widgets: make(map[string]*widget)}
		if s.activeScreen == "" {
			s.activeScreen = id
		}
		return "success"

	case strings.HasPrefix(command, "screen_set "):
		s.handleScreenSet(command)
		return "success"

	case strings.HasPrefix(command, "screen_del "):
		id := strings.TrimPrefix(command, "screen_del ")
		if _, ok := s.screens[id]; ok {
			delete(s.screens, id)
			if s.activeScreen == id {
				s.activeScreen = ""
				for other := range s.screens {
					s.activeScreen = other
					break
				}
			}
		}
		return "success"

	case strings.HasPrefix(command, "widget_add "):
		if m := widgetAddRe.FindStringSubmatch(command); m != nil {
			if scr, ok := s.screens[m[1]]; ok {
				scr.widgets[m[2]] = &widget{typ: m[3], x: 1, y: 1}
			}
		}
		return "success"

	case strings.HasPrefix(command, "widget_set "):
		s.handleWidgetSet(command)
		return "success"

	case strings.HasPrefix(command, "widget_del "):
		if m := widgetDelRe.FindStringSubmatch(command); m != nil {
			if scr, ok := s.screens[m[1]]; ok {
				delete(scr.widgets, m[2])
			}
		}
		return "success"

	default:
		s.log.Debug("lcdproc unknown command", zap.String("command", command))
		return "huh?"
	}
}

func (s *Server) handleScreenSet(command string) {
	parts := strings.Fields(command)
	if len(parts) < 2 {
		return
	}
	scr, ok := s.screens[parts[1]]
	if !ok {
		return
	}
	for i := 2; i < len(parts)-1; i++ {
		switch parts[i] {
		case "-name":
			scr.name = strings.Trim(parts[i+1], `"`)
		case "-priority":
			if p, err := strconv.Atoi(parts[i+1]); err == nil {
				scr.priority = p
			}
		}
	}
}

func (s *Server) handleWidgetSet(command string) {
	m := widgetSetRe.FindStringSubmatch(command)
	if m == nil {
		s.log.Debug("lcdproc unparseable widget_set", zap.String("command", command))
		return
	}
	screenID, widgetID := m[1], m[2]

	// MMDVMHost issues widget_set for screens it never added.
	scr, ok := s.screens[screenID]
	if !ok {
		scr = &screen{priority: 5, widgets: make(map[string]*widget)}
		s.screens[screenID] = scr
		if s.activeScreen == "" {
			s.activeScreen = screenID
		}
	}
	w, ok := scr.widgets[widgetID]
	if !ok {
		w = &widget{typ: "string"}
		scr.widgets[widgetID] = w
	}

	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	// MMDVMHost sends a huge X (near max int) meaning "leftmost".
	if x < 1 || x > displayWidth {
		x = 1
	}
	w.x = x
	w.y = y + 1 // wire coordinates are 0-based rows
	w.text = m[5]

	if s.sink != nil {
		s.sink.SetDisplay(s.renderLocked())
	}
}

// DisplayLines renders the active screen, padded to the display size.
func (s *Server) DisplayLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

func (s *Server) renderLocked() []string {
	lines := make([]string, displayHeight)
	blank := strings.Repeat(" ", displayWidth)
	for i := range lines {
		lines[i] = blank
	}

	scr, ok := s.screens[s.activeScreen]
	if !ok {
		return lines
	}

	for _, w := range scr.widgets {
		if w.typ != "string" || w.y < 1 || w.y > displayHeight {
			continue
		}
		row := []byte(lines[w.y-1])
		for i := 0; i < len(w.text); i++ {
			pos := w.x - 1 + i
			if pos >= displayWidth {
				break
			}
			row[pos] = w.text[i]
		}
		lines[w.y-1] = string(row)
	}
	return lines
}

// State reports the full virtual display for the API.
func (s *Server) State() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	screens := make(map[string]interface{}, len(s.screens))
	for id, scr := range s.screens {
		widgets := make(map[string]interface{}, len(scr.widgets))
		for wid, w := range scr.widgets {
			widgets[wid] = map[string]interface{}{
				"type": w.typ,
				"x":    w.x,
				"y":    w.y,
				"text": w.text,
			}
		}
		screens[id] = map[string]interface{}{
			"name":     scr.name,
			"priority": scr.priority,
			"widgets":  widgets,
		}
	}

	return map[string]interface{}{
		"clientName":   s.clientName,
		"activeScreen": s.activeScreen,
		"displaySize":  map[string]int{"width": displayWidth, "height": displayHeight},
		"screens":      screens,
		"displayLines": s.renderLocked(),
	}
}
