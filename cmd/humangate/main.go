package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	server "github.com/humangate/humangate/internal"
	"github.com/humangate/humangate/internal/activityimpl"
	"github.com/humangate/humangate/internal/assignment"
	"github.com/humangate/humangate/internal/client"
	"github.com/humangate/humangate/internal/config"
	"github.com/humangate/humangate/internal/group"
	groupimpl "github.com/humangate/humangate/internal/group/repositoryimpl"
	"github.com/humangate/humangate/internal/notification"
	"github.com/humangate/humangate/internal/protocol"
	"github.com/humangate/humangate/internal/pushsubscription"
	pushsubimpl "github.com/humangate/humangate/internal/pushsubscription/repositoryimpl"
	"github.com/humangate/humangate/internal/signalbus"
	"github.com/humangate/humangate/internal/substrate"
	"github.com/humangate/humangate/internal/task"
	taskimpl "github.com/humangate/humangate/internal/task/repositoryimpl"
	"github.com/humangate/humangate/pkg/clog"
	"github.com/humangate/humangate/pkg/panicerr"
	"github.com/humangate/humangate/pkg/storage"
)

var (
	app = kingpin.New("humangate", "Human-task orchestration server and CLI")

	serveCmd = app.Command("serve", "Start the humangate server")

	serverFlag = app.Flag("server", "Server base URL").Default("http://localhost:3200").Envar("HUMANGATE_SERVER").String()
	apiKeyFlag = app.Flag("api-key", "API key").Envar("HUMANGATE_API_KEY").String()

	// Task commands
	taskCmd = app.Command("task", "Task commands")

	taskCreateCmd       = taskCmd.Command("create", "Create a task")
	taskCreateTitle     = taskCreateCmd.Arg("title", "Task title").Required().String()
	taskCreateProcess   = taskCreateCmd.Flag("process", "Owning process id").Default("manual").String()
	taskCreateRun       = taskCreateCmd.Flag("run", "Owning run id").Default("manual").String()
	taskCreatePerson    = taskCreateCmd.Flag("person", "Assign to a person").String()
	taskCreateGroup     = taskCreateCmd.Flag("group", "Assign to a group").String()
	taskCreateStrategy  = taskCreateCmd.Flag("strategy", "Assignment strategy override").String()
	taskCreatePriority  = taskCreateCmd.Flag("priority", "Priority (low|medium|high|urgent)").String()
	taskCreateDeadline  = taskCreateCmd.Flag("deadline-in", "SLA deadline, e.g. 30m or 2h").String()
	taskCreateOnBreach  = taskCreateCmd.Flag("on-breach", "Breach action (notify|escalate|cancel)").String()
	taskCreateEscalate  = taskCreateCmd.Flag("escalate-to", "Escalation target group").String()

	taskListCmd      = taskCmd.Command("list", "List tasks")
	taskListStatus   = taskListCmd.Flag("status", "Filter by status").String()
	taskListAssignee = taskListCmd.Flag("assignee", "Filter by assignee").String()

	taskShowCmd = taskCmd.Command("show", "Show task details")
	taskShowID  = taskShowCmd.Arg("id", "Task ID").Required().String()

	taskCompleteCmd  = taskCmd.Command("complete", "Complete a task")
	taskCompleteID   = taskCompleteCmd.Arg("id", "Task ID").Required().String()
	taskCompleteBy   = taskCompleteCmd.Flag("by", "Completing person").Required().String()
	taskCompleteData = taskCompleteCmd.Flag("data", "Form data as JSON").Default("{}").String()

	taskCancelCmd    = taskCmd.Command("cancel", "Cancel a task")
	taskCancelID     = taskCancelCmd.Arg("id", "Task ID").Required().String()
	taskCancelReason = taskCancelCmd.Flag("reason", "Cancellation reason").String()
	taskCancelBy     = taskCancelCmd.Flag("by", "Cancelling person").String()

	// Group commands
	groupCmd = app.Command("group", "Group commands")

	groupCreateCmd      = groupCmd.Command("create", "Create a group")
	groupCreateName     = groupCreateCmd.Arg("name", "Group name").Required().String()
	groupCreateStrategy = groupCreateCmd.Flag("strategy", "Assignment strategy").Default("round_robin").String()
	groupCreateMembers  = groupCreateCmd.Flag("member", "Initial member person id").Strings()

	groupListCmd = groupCmd.Command("list", "List groups")

	groupAddCmd    = groupCmd.Command("add-member", "Add a member to a group")
	groupAddID     = groupAddCmd.Arg("group", "Group ID").Required().String()
	groupAddPerson = groupAddCmd.Arg("person", "Person ID").Required().String()

	groupRemoveCmd    = groupCmd.Command("remove-member", "Remove a member from a group")
	groupRemoveID     = groupRemoveCmd.Arg("group", "Group ID").Required().String()
	groupRemovePerson = groupRemoveCmd.Arg("person", "Person ID").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == serveCmd.FullCommand() {
		serve()
		return
	}

	ctx := context.Background()
	c := client.New(*serverFlag, *apiKeyFlag)

	var err error
	switch command {
	case taskCreateCmd.FullCommand():
		err = runTaskCreate(ctx, c)
	case taskListCmd.FullCommand():
		err = runTaskList(ctx, c)
	case taskShowCmd.FullCommand():
		err = runTaskShow(ctx, c)
	case taskCompleteCmd.FullCommand():
		err = runTaskComplete(ctx, c)
	case taskCancelCmd.FullCommand():
		err = runTaskCancel(ctx, c)
	case groupCreateCmd.FullCommand():
		err = runGroupCreate(ctx, c)
	case groupListCmd.FullCommand():
		err = runGroupList(ctx, c)
	case groupAddCmd.FullCommand():
		err = c.AddGroupMember(ctx, *groupAddID, *groupAddPerson)
	case groupRemoveCmd.FullCommand():
		err = c.RemoveGroupMember(ctx, *groupRemoveID, *groupRemovePerson)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Store
	var watchRoot string
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Store(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		dirStore, err := storage.NewDirStore(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
		store = dirStore
		watchRoot = dirStore.Root()
	}

	bus := signalbus.New()

	// Setup repositories
	taskRepo := taskimpl.NewYAMLRepository(store)
	var groupRepo group.Repository = groupimpl.NewYAMLRepository(store)
	if watchRoot != "" {
		cached, err := group.NewCachedRepository(groupRepo, watchRoot)
		if err != nil {
			slog.Warn("group cache disabled", "error", err)
		} else {
			defer cached.Close()
			groupRepo = cached
		}
	}
	pushSubRepo := pushsubimpl.NewYAMLRepository(store)

	resolver := assignment.NewResolver(groupRepo, taskRepo)

	// Setup notification channel
	vapidEnv := config.VAPIDEnvFromEnv(env)
	var notifier notification.Notifier = notification.NewLogNotifier()
	if vapidEnv.VAPIDPrivateKey != "" && vapidEnv.VAPIDPublicKey != "" {
		notifier = notification.NewPushSender(vapidEnv, pushSubRepo)
	}

	// SLA enforcement: the supervisor attaches engine waits to open tasks so
	// deadline and escalation timers run for tasks created over HTTP and for
	// tasks left open by a previous run.
	slaEnv := config.SLAEnvFromEnv(env)
	provider := activityimpl.NewProvider(taskRepo, resolver, notifier, bus)
	var engineOpts []protocol.Option
	if slaEnv.DefaultEscalationGroup != "" {
		engineOpts = append(engineOpts, protocol.WithDefaultEscalationTarget(
			&task.AssignmentTarget{GroupID: slaEnv.DefaultEscalationGroup}))
	}
	engine := protocol.NewEngine(
		substrate.NewLocal(bus),
		protocol.WithRetries(provider, protocol.DefaultRetryPolicy),
		resolver,
		engineOpts...,
	)
	supervisor := protocol.NewSupervisor(engine, taskRepo, slaEnv.SweepInterval)

	// Setup servers
	taskServer := task.NewServer(taskRepo, resolver, bus, notifier)
	groupServer := group.NewServer(groupRepo)
	pushSubServer := pushsubscription.NewServer(pushSubRepo)

	srv := server.NewServer(env, taskServer, groupServer, pushSubServer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	panicerr.Go(func() {
		supervisor.Run(ctx)
	})
	panicerr.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func runTaskCreate(ctx context.Context, c *client.Client) error {
	req := &client.CreateTaskRequest{
		ProcessID: *taskCreateProcess,
		RunID:     *taskCreateRun,
		Title:     *taskCreateTitle,
		Assignment: client.AssignmentTarget{
			PersonID: *taskCreatePerson,
			GroupID:  *taskCreateGroup,
		},
		Strategy: *taskCreateStrategy,
		Priority: *taskCreatePriority,
	}
	if *taskCreateDeadline != "" {
		req.SLA = &client.SLA{
			DeadlineIn: *taskCreateDeadline,
			OnBreach:   *taskCreateOnBreach,
		}
		if *taskCreateEscalate != "" {
			req.SLA.EscalateTo = &client.AssignmentTarget{GroupID: *taskCreateEscalate}
		}
	}
	t, err := c.CreateTask(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s (%s)\n", t.ID, t.Title)
	if t.AssigneeID != "" {
		fmt.Printf("Assigned to %s\n", t.AssigneeID)
	}
	if t.DueAt != nil {
		fmt.Printf("Due at %s\n", t.DueAt.Format(time.RFC3339))
	}
	return nil
}

func runTaskList(ctx context.Context, c *client.Client) error {
	list, err := c.ListTasks(ctx, *taskListStatus, *taskListAssignee)
	if err != nil {
		return err
	}
	for _, t := range list.Tasks {
		line := fmt.Sprintf("%s  %-9s  %s", t.ID, t.Status, t.Title)
		if t.AssigneeID != "" {
			line += "  @" + t.AssigneeID
		}
		if t.SLAState != "" {
			line += "  [" + t.SLAState + "]"
		}
		fmt.Println(line)
	}
	fmt.Printf("%d task(s)\n", list.Total)
	return nil
}

func runTaskShow(ctx context.Context, c *client.Client) error {
	t, err := c.GetTask(ctx, *taskShowID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTaskComplete(ctx context.Context, c *client.Client) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(*taskCompleteData), &data); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}
	t, err := c.CompleteTask(ctx, *taskCompleteID, data, *taskCompleteBy)
	if err != nil {
		return err
	}
	fmt.Printf("Completed task %s\n", t.ID)
	return nil
}

func runTaskCancel(ctx context.Context, c *client.Client) error {
	t, err := c.CancelTask(ctx, *taskCancelID, *taskCancelReason, *taskCancelBy)
	if err != nil {
		return err
	}
	fmt.Printf("Cancelled task %s\n", t.ID)
	return nil
}

func runGroupCreate(ctx context.Context, c *client.Client) error {
	g, err := c.CreateGroup(ctx, *groupCreateName, *groupCreateStrategy, *groupCreateMembers)
	if err != nil {
		return err
	}
	fmt.Printf("Created group %s (%s, %d member(s))\n", g.ID, g.Strategy, g.MemberCount)
	return nil
}

func runGroupList(ctx context.Context, c *client.Client) error {
	list, err := c.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range list.Groups {
		fmt.Printf("%s  %-13s  %d member(s)  %s\n", g.ID, g.Strategy, g.MemberCount, g.Name)
	}
	return nil
}
