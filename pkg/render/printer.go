package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"
)

// PrintManifest 以表格形式打印整棵树
// 目录先于文件，按 Manifest 中已有的顺序输出
func PrintManifest(m *manifest.Manifest, w io.Writer) error {
	if m == nil || m.Root == nil {
		return fmt.Errorf("empty manifest")
	}
	st := m.Stats()
	fmt.Fprintf(w, "Version: %d\n", m.Version)
	fmt.Fprintf(w, "Dirs:    %d\n", st.Dirs)
	fmt.Fprintf(w, "Files:   %d\n", st.Files)
	fmt.Fprintf(w, "Pins:    %d\n\n", st.Annotations)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tPIN\tNAME\n")
	if m.Root.Annotation != nil {
		fmt.Fprintf(tw, "root\t%s\t/\n", fmtPin(m.Root.Annotation))
	}
	printNode(tw, m.Root, 0)
	return tw.Flush()
}

func printNode(w io.Writer, n *manifest.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range n.Children {
		fmt.Fprintf(w, "dir\t%s\t%s%s/\n", fmtPin(c.Annotation), indent, c.Name)
		printNode(w, c, depth+1)
	}
	for _, f := range n.Files {
		name := f.Name
		if f.URL != "" {
			name += "  -> " + f.URL
		}
		fmt.Fprintf(w, "file\t-\t%s%s\n", indent, name)
	}
}

func fmtPin(a *manifest.Annotation) string {
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("(%g, %g, %g)", a.X, a.Y, a.Z)
}

// PrintRuns 打印运行历史，模仿 git log --oneline 的密度
func PrintRuns(runs []meta.RunRecord, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTARTED\tSTATE\tFINGERPRINT\tVERSION\tDIRS\tFILES\tPINS\tDUR\tPATH\n")
	for _, r := range runs {
		state := r.State
		if r.DryRun {
			state += " (dry)"
		}
		if r.Source == meta.SourcePinSync {
			state += " (pins)"
		}
		if r.FailedStage != "" {
			state += "@" + r.FailedStage
		}
		fp := r.Fingerprint
		if len(fp) > 8 {
			fp = fp[:8]
		}
		if fp == "" {
			fp = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			state,
			fp,
			r.Version,
			r.Dirs,
			r.Files,
			r.Annotations,
			fmtDur(r.FinishedAt.Sub(r.StartedAt)),
			r.ManifestPath,
		)
	}
	return tw.Flush()
}

func fmtDur(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
