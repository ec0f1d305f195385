package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/dyike/cortexmarket/internal/agents"
	"github.com/dyike/cortexmarket/internal/agents/memory"
	"github.com/dyike/cortexmarket/pkg/app"
)

const chatHelp = `命令:
  /history          显示本会话的对话记录
  /clear            清空本会话的短期记忆
  /pref key=value   保存一条长期偏好 (例如 /pref risk=稳健)
  /exit             退出`

type chatFlags struct {
	user    string
	session string
	message string
	prefs   map[string]string
}

func (f *chatFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "default", "User id owning the session and its memories")
	cmd.Flags().StringVar(&f.session, "session", "", "Session id to resume (a new one is generated if empty)")
	cmd.Flags().StringToStringVar(&f.prefs, "pref", nil, "Save long-term preferences before chatting, e.g. --pref risk=稳健")
}

// openAgent builds the app with event rendering and resolves the session.
func (f *chatFlags) openAgent(ctx context.Context, e *env, out io.Writer) (*app.App, *agents.InvestmentAgent, error) {
	a, err := e.open(ctx, app.WithObserver(func(ev agents.Event) { renderEvent(out, ev) }))
	if err != nil {
		return nil, nil, err
	}
	agent, err := a.Agent(ctx, f.user, f.session)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	if err := savePrefs(ctx, a.LongTerm, f.user, f.prefs); err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, agent, nil
}

func savePrefs(ctx context.Context, lt *memory.LongTerm, user string, prefs map[string]string) error {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := lt.SavePreference(ctx, user, k, prefs[k]); err != nil {
			return err
		}
	}
	return nil
}

func newChatCmd(e *env) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the investment assistant",
		Long: `Start an interactive session with the investment assistant. The assistant can
look up stored financial news and search the web. With --message one turn is run and
the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			a, agent, err := f.openAgent(ctx, e, out)
			if err != nil {
				return err
			}
			defer a.Close()

			if f.message != "" {
				return chatTurn(ctx, out, agent, f.message)
			}
			return chatLoop(ctx, out, a, agent)
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "Send one message and exit")
	return cmd
}

func newAdviceCmd(e *env) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "advice [topic]",
		Short: "Ask for investment advice on a topic or the whole market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			a, agent, err := f.openAgent(ctx, e, out)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := agent.Advice(ctx, strings.Join(args, " "))
			renderAnswer(out, reply)
			return err
		},
	}
	f.bind(cmd)
	return cmd
}

// chatTurn runs one turn. LLM failures are part of the reply; only a
// missing configuration ends the command with an error.
func chatTurn(ctx context.Context, out io.Writer, agent *agents.InvestmentAgent, msg string) error {
	reply, err := agent.Chat(ctx, msg)
	renderAnswer(out, reply)
	if errors.Is(err, agents.ErrNotConfigured) {
		return err
	}
	return nil
}

func chatLoop(ctx context.Context, out io.Writer, a *app.App, agent *agents.InvestmentAgent) error {
	fmt.Fprintln(out, titleStyle.Render("CortexMarket 投资助手"))
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("用户 %s · 会话 %s", agent.UserID(), agent.SessionID())))
	fmt.Fprintln(out, mutedStyle.Render(chatHelp))
	if !agent.Configured() {
		return agents.ErrNotConfigured
	}

	for {
		line, err := promptMessage(agent.UserID())
		if errors.Is(err, terminal.InterruptErr) {
			fmt.Fprintln(out, "再见 👋")
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			fmt.Fprintln(out, "再见 👋")
			return nil
		case line == "/help":
			fmt.Fprintln(out, chatHelp)
		case line == "/history":
			renderHistory(ctx, out, agent)
		case line == "/clear":
			ok, err := promptConfirm("清空本会话的对话记录?")
			if err != nil {
				return err
			}
			if ok {
				agent.ClearSession(ctx)
				fmt.Fprintln(out, "已清空")
			}
		case strings.HasPrefix(line, "/pref "):
			k, v, found := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/pref ")), "=")
			if !found || strings.TrimSpace(k) == "" {
				fmt.Fprintln(out, warnStyle.Render("用法: /pref key=value"))
				continue
			}
			if _, err := a.LongTerm.SavePreference(ctx, agent.UserID(), strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
				fmt.Fprintln(out, errorStyle.Render("保存失败: "+err.Error()))
				continue
			}
			fmt.Fprintln(out, "已记住偏好 "+strings.TrimSpace(k))
		default:
			if err := chatTurn(ctx, out, agent, line); err != nil {
				return err
			}
		}
	}
}

func renderHistory(ctx context.Context, out io.Writer, agent *agents.InvestmentAgent) {
	turns := agent.History(ctx)
	if len(turns) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("暂无对话记录"))
		return
	}
	for _, t := range turns {
		who := t.Role
		if t.ToolName != "" {
			who += "(" + t.ToolName + ")"
		}
		fmt.Fprintf(out, "%s %s %s\n", mutedStyle.Render(t.Timestamp.Format("15:04:05")), headerStyle.Render(who), memory.Truncate(t.Content, 120))
	}
}
