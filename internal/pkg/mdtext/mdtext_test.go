package mdtext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripHeadingsAndEmphasis(t *testing.T) {
	got := Strip("# Deploy Guide\n\nPress the **blue** button, then *wait*.")
	require.Contains(t, got, "Deploy Guide")
	require.Contains(t, got, "Press the blue button, then wait.")
	require.NotContains(t, got, "#")
	require.NotContains(t, got, "*")
}

func TestStripLinksKeepText(t *testing.T) {
	got := Strip("See [the runbook](https://wiki.internal/runbook) for details.")
	require.Contains(t, got, "the runbook")
	require.Contains(t, got, "for details.")
	require.NotContains(t, got, "](")
}

func TestStripKeepsCodeContent(t *testing.T) {
	got := Strip("Run this:\n\n```sh\nkubectl rollout restart deploy/api\n```\n")
	require.Contains(t, got, "kubectl rollout restart deploy/api")
	require.NotContains(t, got, "```")
}

func TestStripPlainTextUnchanged(t *testing.T) {
	require.Equal(t, "just a sentence", Strip("just a sentence"))
	require.Equal(t, "", Strip("   "))
}

func TestChunkSplitsAtHeadings(t *testing.T) {
	doc := "# Install\n\nRun the installer.\n\n## Configure\n\nSet the endpoint flag."
	chunks := Chunk(doc, 8000)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[0], "Heading: Install")
	require.Contains(t, chunks[0], "Run the installer.")
	require.Contains(t, chunks[1], "Heading: Configure")
	require.Contains(t, chunks[1], "Set the endpoint flag.")
}

func TestChunkHeadingContextOnEveryPiece(t *testing.T) {
	doc := "# Runbook\n\nFirst paragraph with plenty of words to count.\n\nSecond paragraph with plenty of words too."
	chunks := Chunk(doc, 50)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		require.Contains(t, c, "Heading: Runbook")
	}
}

func TestChunkRespectsBudget(t *testing.T) {
	doc := "Paragraph one is here.\n\nParagraph two is here.\n\nParagraph three is here."
	chunks := Chunk(doc, 46)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[0], "Paragraph one")
	require.Contains(t, chunks[0], "Paragraph two")
	require.Contains(t, chunks[1], "Paragraph three")
}

func TestChunkHardSplitsOversizedBlock(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	chunks := Chunk(long, 100)
	require.Len(t, chunks, 3)
	total := 0
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 100)
		total += len(c)
	}
	require.Equal(t, 300, total, "no text dropped")
}

func TestChunkSmallDocumentSingleChunk(t *testing.T) {
	chunks := Chunk("Press the **blue** button.", 8000)
	require.Len(t, chunks, 1)
	require.Equal(t, "Press the blue button.", chunks[0])
	require.Empty(t, Chunk("   ", 8000))
}
