package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTasks(t *testing.T) {
	tasks, err := ParseTasks("")
	require.NoError(t, err)
	assert.Equal(t, []Task{TaskReport}, tasks)

	tasks, err = ParseTasks("timeline, report,timeline")
	require.NoError(t, err)
	assert.Equal(t, []Task{TaskTimeline, TaskReport}, tasks)

	tasks, err = ParseTasks("all")
	require.NoError(t, err)
	assert.Equal(t, AllTasks(), tasks)

	_, err = ParseTasks("report,poetry")
	assert.Error(t, err)
}

func TestArticleTopic(t *testing.T) {
	var a Article
	assert.Equal(t, NoiseTopic, a.Topic())

	a.SetTopic(3)
	require.NotNil(t, a.TopicID)
	assert.Equal(t, 3, a.Topic())
}
