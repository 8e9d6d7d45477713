package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"conclave/domain"
	"conclave/observability"
	"conclave/services"

	"github.com/gookit/color"
)

// repl is the terminal frontend: a line-oriented command loop over the chat
// service. Anything that is not a slash command is posted to the current
// session as user input.
type repl struct {
	service *services.ChatService
	monitor *observability.Monitor
	in      io.Reader
	out     io.Writer
	current string
}

func newRepl(service *services.ChatService, monitor *observability.Monitor, in io.Reader, out io.Writer) *repl {
	return &repl{service: service, monitor: monitor, in: in, out: out}
}

func (r *repl) loop(ctx context.Context) error {
	fmt.Fprintln(r.out, color.Cyan.Sprint("Type /help for commands."))
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := r.dispatch(ctx, line); err != nil {
			fmt.Fprintln(r.out, color.Red.Sprintf("error: %v", err))
		}
	}
	return scanner.Err()
}

func (r *repl) dispatch(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.post(line, nil, nil)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/help":
		r.help()
		return nil
	case "/sessions":
		for _, s := range r.service.ListSessions() {
			marker := " "
			if s.ID == r.current {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s  %-9s %s\n", marker, s.ID, s.Mode, s.Title)
		}
		return nil
	case "/new":
		return r.newSession(rest)
	case "/use":
		if _, err := r.service.GetSession(rest); err != nil {
			return err
		}
		r.current = rest
		fmt.Fprintln(r.out, color.Cyan.Sprintf("now talking in %s", rest))
		return nil
	case "/ask":
		ids, text, ok := strings.Cut(rest, " ")
		if !ok {
			return fmt.Errorf("usage: /ask id1,id2 <message>")
		}
		return r.post(text, nil, strings.Split(ids, ","))
	case "/attach":
		path, caption, _ := strings.Cut(rest, " ")
		if path == "" {
			return fmt.Errorf("usage: /attach <path> [caption]")
		}
		return r.post(caption, []string{path}, nil)
	case "/stop":
		if err := r.need(); err != nil {
			return err
		}
		r.service.StopSession(r.current)
		fmt.Fprintln(r.out, color.Gray.Sprint("stopping..."))
		return nil
	case "/roster":
		for _, p := range r.service.Roster() {
			state := color.Green.Sprint("on ")
			if !p.Enabled {
				state = color.Red.Sprint("off")
			}
			alliance := p.Alliance
			if alliance == "" {
				alliance = "-"
			}
			fmt.Fprintf(r.out, "%s %-12s %-16s %-10s tokens=%d\n", state, p.ID, p.Name, alliance, p.Usage.Total)
		}
		return nil
	case "/enable", "/disable":
		if err := r.need(); err != nil {
			return err
		}
		return r.service.SetParticipantEnabled(r.current, rest, cmd == "/enable")
	case "/confirm":
		if err := r.need(); err != nil {
			return err
		}
		return r.service.ConfirmKick(r.current, rest)
	case "/reject":
		if err := r.need(); err != nil {
			return err
		}
		return r.service.RejectKick(r.current, rest)
	case "/kicks":
		if err := r.need(); err != nil {
			return err
		}
		session, err := r.service.GetSession(r.current)
		if err != nil {
			return err
		}
		for _, k := range session.PendingKicks {
			fmt.Fprintf(r.out, "%s requested by %s: %s\n", k.TargetID, k.RequestedBy, k.Reason)
		}
		return nil
	case "/game":
		if err := r.need(); err != nil {
			return err
		}
		mode, topic, _ := strings.Cut(rest, " ")
		if mode == "" {
			return fmt.Errorf("usage: /game GENERAL|GAME|DEBATE [topic]")
		}
		return r.service.StartGame(r.current, domain.RefereeMode(strings.ToUpper(mode)), topic)
	case "/endgame":
		if err := r.need(); err != nil {
			return err
		}
		return r.service.EndGame(r.current)
	case "/vote":
		if err := r.need(); err != nil {
			return err
		}
		session, err := r.service.GetSession(r.current)
		if err != nil {
			return err
		}
		if !session.Vote.Active {
			fmt.Fprintln(r.out, "no active vote")
			return nil
		}
		fmt.Fprintf(r.out, "candidates: %s\n", strings.Join(session.Vote.Candidates, ", "))
		for voter, candidate := range session.Vote.Ballots {
			fmt.Fprintf(r.out, "  %s -> %s\n", voter, candidate)
		}
		return nil
	case "/search":
		hits, err := r.service.SearchTranscript(ctx, r.current, rest, 10)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			fmt.Fprintf(r.out, "%.2f [%s] %s\n", hit.Score, hit.Sender, hit.Content)
		}
		return nil
	case "/stats":
		stats := r.monitor.GetLatest()
		fmt.Fprintf(r.out, "messages=%d rounds=%d cancelled=%d votes=%d kicks=%d compactions=%d\n",
			stats.Messages, stats.Rounds, stats.CancelledRounds, stats.VotesCast, stats.KicksStaged, stats.Compactions)
		fmt.Fprintf(r.out, "generations=%d avg_latency=%.0fms\n", stats.Generations, stats.AvgLatencyMs)
		for category, n := range stats.Failures {
			fmt.Fprintf(r.out, "  failures[%s]=%d\n", category, n)
		}
		fmt.Fprintf(r.out, "cpu=%.1f%% ram=%.1f%% alloc=%dMB gc=%d\n",
			stats.CPUPercent, stats.RAMPercent, stats.AllocMemMb, stats.NumGC)
		return nil
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

// newSession parses "/new [MODE [refereeID]] title...".
func (r *repl) newSession(rest string) error {
	mode := domain.FreeChat
	refereeID := ""

	fields := strings.Fields(rest)
	if len(fields) > 0 {
		switch domain.Mode(strings.ToUpper(fields[0])) {
		case domain.Judge, domain.Narrator:
			mode = domain.Mode(strings.ToUpper(fields[0]))
			if len(fields) < 2 {
				return fmt.Errorf("usage: /new %s <refereeID> <title>", mode)
			}
			refereeID = fields[1]
			fields = fields[2:]
		case domain.FreeChat:
			fields = fields[1:]
		}
	}
	title := strings.Join(fields, " ")
	if title == "" {
		title = "untitled"
	}

	session, err := r.service.CreateSession(title, mode, refereeID, domain.CompressionConfig{
		Enabled: true, Window: 60, Margin: 20,
	})
	if err != nil {
		return err
	}
	r.current = session.ID
	fmt.Fprintln(r.out, color.Cyan.Sprintf("created %s (%s)", session.ID, session.Mode))
	return nil
}

func (r *repl) post(content string, media, speakers []string) error {
	if err := r.need(); err != nil {
		return err
	}
	return r.service.PostMessage(r.current, content, media, speakers)
}

func (r *repl) need() error {
	if r.current == "" {
		return fmt.Errorf("no session selected, use /new or /use")
	}
	return nil
}

func (r *repl) help() {
	fmt.Fprint(r.out, `  <text>                      post to the current session
  /new [MODE [refereeID]] <title>   create a session (FREE_CHAT, JUDGE, NARRATOR)
  /use <id>                   switch session        /sessions   list sessions
  /ask id1,id2 <text>         post and pick the speakers
  /attach <path> [caption]    post a media file
  /stop                       stop the current round and the auto loop
  /roster /enable /disable    participant management
  /kicks /confirm /reject     pending removals
  /game <mode> [topic]        start a refereed game or debate   /endgame
  /vote                       show the active vote
  /search <terms>             full-text search in this session
  /stats                      engine counters       /quit
`)
}
