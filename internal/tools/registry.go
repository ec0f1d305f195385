package tools

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/zeromicro/go-zero/core/logx"
)

// Registry holds the tools exposed to the agent, in registration order.
type Registry struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

func NewRegistry(ctx context.Context, tools ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]tool.InvokableTool, len(tools))}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %s", info.Name)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Infos returns the schemas to bind on the chat model.
func (r *Registry) Infos() []*schema.ToolInfo {
	return r.infos
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.infos))
	for i, info := range r.infos {
		names[i] = info.Name
	}
	return names
}

// Execute runs a tool and always returns text for the model: unknown tools,
// failures and panics become messages. Undecodable arguments fall back to "{}".
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (out string) {
	t, ok := r.tools[name]
	if !ok {
		return "未知工具: " + name
	}
	if argsJSON == "" || !sonic.Valid([]byte(argsJSON)) {
		argsJSON = "{}"
	}
	logx.WithContext(ctx).Infof("tools: execute name=%s args=%s", name, argsJSON)
	defer func() {
		if p := recover(); p != nil {
			logx.WithContext(ctx).Errorf("tools: name=%s panic=%v", name, p)
			out = fmt.Sprintf("工具执行失败: %v", p)
		}
	}()
	out, err := t.InvokableRun(ctx, argsJSON)
	if err != nil {
		logx.WithContext(ctx).Errorf("tools: name=%s err=%v", name, err)
		return "工具执行失败: " + err.Error()
	}
	return out
}
