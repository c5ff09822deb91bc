package server

import (
	"html/template"
	"time"
)

var templateFuncs = template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"deref": func(s *string) string {
		if s == nil {
			return "(task)"
		}
		return *s
	},
}

const indexTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>chatui</title>
<style>
body { font-family: -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { border-bottom: 1px solid #ddd; padding: .4rem .6rem; text-align: left; font-size: 14px; }
.failed { color: #b00020; }
.success { color: #1b5e20; }
</style>
</head>
<body>
<h1>chatui</h1>
<h2>任务</h2>
<table>
<tr><th>ID</th><th>名称</th><th>群聊</th><th>调度</th><th>进度</th><th>上次运行</th><th>状态</th></tr>
{{range .tasks}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td>{{range $i, $r := .RoomNames}}{{if $i}}, {{end}}{{$r}}{{end}}</td>
<td>{{if eq .ScheduleKind "once"}}once{{else}}{{.Cron}}{{end}}</td>
<td>{{.Progress}}</td><td>{{.LastRunStatus}}</td><td>{{.State}}</td>
</tr>{{else}}<tr><td colspan="7">暂无任务</td></tr>{{end}}
</table>
<h2>最近报告</h2>
<table>
<tr><th>ID</th><th>任务</th><th>群聊</th><th>时间范围</th><th>消息数</th><th>状态</th><th>生成时间</th></tr>
{{range .reports}}<tr>
<td><a href="/reports/{{.ID}}">{{.ID}}</a></td><td>{{.TaskName}}</td><td>{{deref .Room}}</td>
<td>{{.Window}}</td><td>{{.MessageCount}}</td>
<td class="{{.Status}}">{{.Status}}{{if .Error}} ({{.Error}}){{end}}</td><td>{{fmtTime .CreatedAt}}</td>
</tr>{{else}}<tr><td colspan="7">暂无报告</td></tr>{{end}}
</table>
</body>
</html>
`
