package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"teamtasks/internal/apperr"
	"teamtasks/internal/config"
	"teamtasks/internal/model"
	"teamtasks/internal/recurrence"
	"teamtasks/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTaskName
	stageTaskDescription
	stageTaskDate
	stageTaskFrequency
	stageTaskWeekDays
	stageTaskMonthDay
	stageCommentNew
	stageCommentEdit
)

const (
	cbOpenListPrefix      = "open:"
	cbTogglePrefix        = "toggle:"
	cbCommentsPrefix      = "comments:"
	cbAddCommentPrefix    = "addc:"
	cbEditCommentPrefix   = "editc:"
	cbDeleteCommentPrefix = "delc:"
	cbDeleteTaskPrefix    = "delt:"
	cbNewTaskPrefix       = "newtask:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnCancelDialog = "⏪ Cancel input"
	menuLabelLists  = "📋 Task lists"
	menuLabelToday  = "📝 Today"
	menuLabelReport = "📊 Report"
	menuLabelHelp   = "ℹ️ Help"
)

// taskRef addresses a task within its list; callbacks carry it encoded.
type taskRef struct {
	listID int64
	taskID int64
}

type conversationState struct {
	stage  conversationStage
	listID int64
	task   service.TaskInput

	ref    taskRef
	editor *service.CommentEditor
}

// menuAction is the tagged dispatch target for main-menu labels: either a
// navigation to a view or an invocation of a handler.
type menuAction interface{ isMenuAction() }

type navigateAction struct{ view viewID }

type invokeAction struct {
	run func(ctx context.Context, chatID int64) error
}

func (navigateAction) isMenuAction() {}
func (invokeAction) isMenuAction()   {}

type viewID int

const (
	viewLists viewID = iota
	viewToday
	viewHelp
)

// Bot is the Telegram surface over the task services. It processes one
// update at a time; per-chat dialog state lives in conversations.
type Bot struct {
	api        *tgbotapi.BotAPI
	tasks      *service.TaskService
	comments   *service.CommentService
	reminders  *service.ReminderService
	config     *config.Config
	groupID    int64
	menu       map[string]menuAction
	mu         sync.Mutex
	dialogs    map[int64]*conversationState
	knownChats map[int64]struct{}
}

func New(token string, tasks *service.TaskService, comments *service.CommentService, reminders *service.ReminderService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := &Bot{
		api:        api,
		tasks:      tasks,
		comments:   comments,
		reminders:  reminders,
		config:     cfg,
		groupID:    cfg.GroupID,
		dialogs:    make(map[int64]*conversationState),
		knownChats: make(map[int64]struct{}),
	}
	b.menu = map[string]menuAction{
		strings.ToLower(menuLabelLists):  navigateAction{view: viewLists},
		strings.ToLower(menuLabelToday):  navigateAction{view: viewToday},
		strings.ToLower(menuLabelHelp):   navigateAction{view: viewHelp},
		strings.ToLower(menuLabelReport): invokeAction{run: b.sendDailyReport},
	}
	return b, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	b.rememberChat(msg.Chat.ID)

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		if b.cancelDialog(msg.Chat.ID) {
			return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
		}
		// No dialog to cancel; fall through like any other text.
	}

	if !msg.IsCommand() {
		if action, ok := b.menu[strings.ToLower(strings.TrimSpace(msg.Text))]; ok && !b.hasDialog(msg.Chat.ID) {
			return b.dispatchMenu(ctx, msg.Chat.ID, action)
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasDialog(msg.Chat.ID) {
		return b.handleDialog(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't catch that. Try /lists to browse task lists, or /help for commands.")
}

func (b *Bot) dispatchMenu(ctx context.Context, chatID int64, action menuAction) error {
	switch a := action.(type) {
	case navigateAction:
		switch a.view {
		case viewLists:
			return b.sendTaskLists(ctx, chatID)
		case viewToday:
			return b.sendToday(ctx, chatID)
		case viewHelp:
			return b.sendHelp(chatID)
		}
		return nil
	case invokeAction:
		return a.run(ctx, chatID)
	default:
		return fmt.Errorf("unhandled menu action %T", action)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.sendHelp(msg.Chat.ID)
	case "lists":
		return b.sendTaskLists(ctx, msg.Chat.ID)
	case "today":
		return b.sendToday(ctx, msg.Chat.ID)
	case "report":
		return b.sendDailyReport(ctx, msg.Chat.ID)
	case "cancel":
		if b.cancelDialog(msg.Chat.ID) {
			return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
		}
		return b.sendText(msg.Chat.ID, "Nothing to cancel.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I track your team's task lists.</b>\n\nCommands:\n"+
			"• /lists — browse the group's task lists\n"+
			"• /today — tasks occurring today\n"+
			"• /report — daily summary\n"+
			"• /help — hints\n"+
			"• /cancel — abort the current input",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) sendHelp(chatID int64) error {
	text := "ℹ️ <b>Hints</b>\n" +
		"• /lists — task lists with progress; open one to toggle tasks\n" +
		"• /today — everything occurring today across lists\n" +
		"• Inside a list: tap a task to toggle done, 💬 for comments, 🗑 to delete\n" +
		"• ➕ under a list starts a step-by-step new task (with repeat rules)\n" +
		"• /report — the same summary the daily schedule sends\n" +
		"• /cancel — abort the current input"
	return b.sendText(chatID, text)
}

// sendTaskLists renders the group's lists with their derived buckets.
func (b *Bot) sendTaskLists(ctx context.Context, chatID int64) error {
	lists, err := b.tasks.TaskLists(ctx, b.groupID)
	if err != nil {
		return b.sendFailure(chatID, "load task lists", err)
	}
	if len(lists) == 0 {
		return b.sendText(chatID, "No task lists in this group yet.")
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task lists</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, list := range lists {
		done, total := list.Progress()
		builder.WriteString(fmt.Sprintf("%s <b>%s</b> · %d/%d\n",
			statusIcon(list.Status()), escape(list.Name), done, total))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("📂 %s", shortTitle(list.Name, 24)),
				fmt.Sprintf("%s%d", cbOpenListPrefix, list.ID)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

// sendListTasks renders one list filtered to today's occurrences, with
// toggle and comment buttons per task.
func (b *Bot) sendListTasks(ctx context.Context, chatID, listID int64) error {
	list, err := b.tasks.TaskList(ctx, b.groupID, listID)
	if err != nil {
		return b.sendFailure(chatID, "load task list", err)
	}
	today := time.Now()
	tasks, err := b.tasks.Tasks(ctx, b.groupID, listID, today)
	if err != nil {
		return b.sendFailure(chatID, "load tasks", err)
	}

	done, total := list.Progress()
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s <b>%s</b> · %d/%d overall\n",
		statusIcon(list.Status()), escape(list.Name), done, total))
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today.Format("2006-01-02")))

	var buttons [][]tgbotapi.InlineKeyboardButton
	if len(tasks) == 0 {
		builder.WriteString("— nothing occurs today\n")
	}
	for _, task := range tasks {
		builder.WriteString(formatTaskLine(task))
		toggleTo := "1"
		label := fmt.Sprintf("✅ %s", shortTitle(task.Name, 20))
		if task.Done() {
			toggleTo = "0"
			label = fmt.Sprintf("↩️ %s", shortTitle(task.Name, 20))
		}
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label,
				fmt.Sprintf("%s%d:%d:%s", cbTogglePrefix, listID, task.ID, toggleTo)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("💬 %d", task.CommentCount),
				fmt.Sprintf("%s%d:%d", cbCommentsPrefix, listID, task.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑",
				fmt.Sprintf("%s%d:%d", cbDeleteTaskPrefix, listID, task.ID)),
		}
		buttons = append(buttons, row)
	}
	buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ New task", fmt.Sprintf("%s%d", cbNewTaskPrefix, listID)),
	))

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) sendToday(ctx context.Context, chatID int64) error {
	lists, err := b.tasks.TaskLists(ctx, b.groupID)
	if err != nil {
		return b.sendFailure(chatID, "load task lists", err)
	}

	today := time.Now()
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📝 <b>Today</b> · %s\n\n", today.Format("2006-01-02")))

	any := false
	for _, list := range lists {
		tasks, err := b.tasks.Tasks(ctx, b.groupID, list.ID, today)
		if err != nil {
			return b.sendFailure(chatID, "load tasks", err)
		}
		if len(tasks) == 0 {
			continue
		}
		any = true
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", escape(list.Name)))
		for _, task := range tasks {
			builder.WriteString(formatTaskLine(task))
		}
		builder.WriteByte('\n')
	}
	if !any {
		builder.WriteString("— nothing occurs today\n")
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

func (b *Bot) sendDailyReport(ctx context.Context, chatID int64) error {
	text, err := b.reminders.DailySummary(ctx, b.groupID, time.Now())
	if err != nil {
		return b.sendFailure(chatID, "build report", err)
	}
	return b.sendText(chatID, text)
}

// SendDailyReports pushes the summary to every chat seen since startup.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	for _, chatID := range b.chats() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendDailyReport(ctx, chatID); err != nil {
			log.Printf("send report to %d: %v", chatID, err)
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}
	chatID := cb.Message.Chat.ID
	b.rememberChat(chatID)
	data := cb.Data

	switch {
	case strings.HasPrefix(data, cbOpenListPrefix):
		listID, err := parseInt(strings.TrimPrefix(data, cbOpenListPrefix))
		if err != nil {
			return nil
		}
		return b.sendListTasks(ctx, chatID, listID)

	case strings.HasPrefix(data, cbTogglePrefix):
		return b.handleToggle(ctx, chatID, strings.TrimPrefix(data, cbTogglePrefix))

	case strings.HasPrefix(data, cbCommentsPrefix):
		ref, err := parseTaskRef(strings.TrimPrefix(data, cbCommentsPrefix))
		if err != nil {
			return nil
		}
		return b.sendCommentThread(ctx, chatID, ref)

	case strings.HasPrefix(data, cbAddCommentPrefix):
		ref, err := parseTaskRef(strings.TrimPrefix(data, cbAddCommentPrefix))
		if err != nil {
			return nil
		}
		b.setDialog(chatID, &conversationState{stage: stageCommentNew, ref: ref})
		return b.sendWithReplyMarkup(chatID, "💬 Type the comment text.", cancelKeyboard())

	case strings.HasPrefix(data, cbEditCommentPrefix):
		return b.startCommentEdit(ctx, chatID, strings.TrimPrefix(data, cbEditCommentPrefix))

	case strings.HasPrefix(data, cbDeleteCommentPrefix):
		return b.handleCommentDelete(ctx, chatID, strings.TrimPrefix(data, cbDeleteCommentPrefix))

	case strings.HasPrefix(data, cbDeleteTaskPrefix):
		return b.handleTaskDelete(ctx, chatID, strings.TrimPrefix(data, cbDeleteTaskPrefix))

	case strings.HasPrefix(data, cbNewTaskPrefix):
		listID, err := parseInt(strings.TrimPrefix(data, cbNewTaskPrefix))
		if err != nil {
			return nil
		}
		b.setDialog(chatID, &conversationState{stage: stageTaskName, listID: listID})
		return b.sendWithReplyMarkup(chatID, "🆕 New task.\n<b>Step 1:</b> what is it called?", cancelKeyboard())

	default:
		return nil
	}
}

// handleToggle runs the completion toggle and re-renders the list from the
// refetched state. The refreshed view reflects whatever the backend
// confirmed, never a local guess.
func (b *Bot) handleToggle(ctx context.Context, chatID int64, payload string) error {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return nil
	}
	listID, err1 := parseInt(parts[0])
	taskID, err2 := parseInt(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}
	done := parts[2] == "1"

	task, err := b.tasks.SetDone(ctx, b.groupID, listID, taskID, done)
	if err != nil {
		return b.sendFailure(chatID, "toggle task", err)
	}

	if task.Done() {
		log.Printf("[info] task done id=%d chat=%d", task.ID, chatID)
	} else {
		log.Printf("[info] task reopened id=%d chat=%d", task.ID, chatID)
	}
	return b.sendListTasks(ctx, chatID, listID)
}

func (b *Bot) sendCommentThread(ctx context.Context, chatID int64, ref taskRef) error {
	task, err := b.tasks.Task(ctx, b.groupID, ref.listID, ref.taskID)
	if err != nil {
		return b.sendFailure(chatID, "load task", err)
	}
	comments, err := b.comments.Comments(ctx, ref.taskID)
	if err != nil {
		return b.sendFailure(chatID, "load comments", err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("💬 <b>%s</b>\n\n", escape(task.Name)))
	var buttons [][]tgbotapi.InlineKeyboardButton
	if len(comments) == 0 {
		builder.WriteString("— no comments yet\n")
	}
	for _, comment := range comments {
		builder.WriteString(fmt.Sprintf("<b>%s</b> · %s\n%s\n\n",
			escape(comment.Writer.Nickname),
			comment.CreatedAt.Format("2006-01-02 15:04"),
			escape(comment.Content)))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✏️ #%d", comment.ID),
				fmt.Sprintf("%s%d:%d:%d", cbEditCommentPrefix, ref.listID, ref.taskID, comment.ID)),
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗑 #%d", comment.ID),
				fmt.Sprintf("%s%d:%d:%d", cbDeleteCommentPrefix, ref.listID, ref.taskID, comment.ID)),
		))
	}
	buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ Add comment",
			fmt.Sprintf("%s%d:%d", cbAddCommentPrefix, ref.listID, ref.taskID)),
	))

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) startCommentEdit(ctx context.Context, chatID int64, payload string) error {
	listID, taskID, commentID, err := parseThree(payload)
	if err != nil {
		return nil
	}
	comments, err := b.comments.Comments(ctx, taskID)
	if err != nil {
		return b.sendFailure(chatID, "load comments", err)
	}
	for _, comment := range comments {
		if comment.ID != commentID {
			continue
		}
		editor := service.NewCommentEditor(b.comments, taskID, comment)
		editor.StartEdit()
		b.setDialog(chatID, &conversationState{
			stage:  stageCommentEdit,
			ref:    taskRef{listID: listID, taskID: taskID},
			editor: editor,
		})
		return b.sendWithReplyMarkup(chatID,
			fmt.Sprintf("✏️ Current text:\n<i>%s</i>\n\nSend the new text.", escape(editor.Buffer())),
			cancelKeyboard())
	}
	return b.sendText(chatID, "Comment not found; the thread may have changed.")
}

func (b *Bot) handleTaskDelete(ctx context.Context, chatID int64, payload string) error {
	ref, err := parseTaskRef(payload)
	if err != nil {
		return nil
	}
	if err := b.tasks.DeleteTask(ctx, b.groupID, ref.listID, ref.taskID); err != nil {
		return b.sendFailure(chatID, "delete task", err)
	}
	log.Printf("[info] task deleted id=%d chat=%d", ref.taskID, chatID)
	return b.sendListTasks(ctx, chatID, ref.listID)
}

func (b *Bot) handleCommentDelete(ctx context.Context, chatID int64, payload string) error {
	listID, taskID, commentID, err := parseThree(payload)
	if err != nil {
		return nil
	}
	if err := b.comments.Delete(ctx, taskID, commentID); err != nil {
		return b.sendFailure(chatID, "delete comment", err)
	}
	log.Printf("[info] comment deleted id=%d task=%d chat=%d", commentID, taskID, chatID)
	return b.sendCommentThread(ctx, chatID, taskRef{listID: listID, taskID: taskID})
}

func (b *Bot) handleDialog(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getDialog(msg.Chat.ID)
	if state == nil {
		return nil
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageTaskName:
		if text == "" {
			return b.sendWithReplyMarkup(chatID, "The title cannot be empty. What is the task called?", cancelKeyboard())
		}
		state.task.Name = text
		state.stage = stageTaskDescription
		return b.sendWithReplyMarkup(chatID, "✏️ Add a short description (or Skip).", skipKeyboard())

	case stageTaskDescription:
		if !isSkipInput(text) {
			state.task.Description = text
		}
		state.stage = stageTaskDate
		return b.sendWithReplyMarkup(chatID, "🗓 Start date, like <code>2026-09-01</code> (or <code>today</code>).", cancelKeyboard())

	case stageTaskDate:
		date, err := parseDateInput(text)
		if err != nil {
			return b.sendWithReplyMarkup(chatID, "I can't read that date. Use <code>2026-09-01</code> or <code>today</code>.", cancelKeyboard())
		}
		state.task.Date = date
		state.stage = stageTaskFrequency
		return b.sendWithReplyMarkup(chatID, "🔁 How does it repeat?", frequencyKeyboard())

	case stageTaskFrequency:
		freq, err := recurrence.ParseLabel(text)
		if err != nil {
			return b.sendWithReplyMarkup(chatID, "Pick one of the repeat options on the keyboard.", frequencyKeyboard())
		}
		state.task.Frequency = freq
		switch freq {
		case recurrence.Weekly:
			state.stage = stageTaskWeekDays
			return b.sendWithReplyMarkup(chatID,
				"📆 Which weekdays? Send numbers 0–6 (0=Sunday), e.g. <code>1 3 5</code>.",
				cancelKeyboard())
		case recurrence.Monthly:
			state.stage = stageTaskMonthDay
			return b.sendWithReplyMarkup(chatID,
				"📆 Which day of the month? (1–31; months without it are skipped)",
				cancelKeyboard())
		default:
			err := b.finishTaskCreation(ctx, chatID, state)
			b.clearDialog(chatID)
			return err
		}

	case stageTaskWeekDays:
		days, err := parseWeekDays(text)
		if err != nil {
			return b.sendWithReplyMarkup(chatID, "Weekdays are numbers 0–6, e.g. <code>1 3 5</code>.", cancelKeyboard())
		}
		state.task.WeekDays = days
		err = b.finishTaskCreation(ctx, chatID, state)
		b.clearDialog(chatID)
		return err

	case stageTaskMonthDay:
		day, err := strconv.Atoi(text)
		if err != nil || day < 1 || day > 31 {
			return b.sendWithReplyMarkup(chatID, "The day must be a number from 1 to 31.", cancelKeyboard())
		}
		state.task.MonthDay = day
		err = b.finishTaskCreation(ctx, chatID, state)
		b.clearDialog(chatID)
		return err

	case stageCommentNew:
		if _, err := b.comments.Create(ctx, state.ref.taskID, msg.Text); err != nil {
			if apperr.IsValidation(err) {
				return b.sendWithReplyMarkup(chatID, "A comment cannot be empty. Type the text or cancel.", cancelKeyboard())
			}
			b.clearDialog(chatID)
			return b.sendFailure(chatID, "save comment", err)
		}
		b.clearDialog(chatID)
		return b.sendCommentThread(ctx, chatID, state.ref)

	case stageCommentEdit:
		state.editor.SetBuffer(msg.Text)
		if err := state.editor.Save(ctx); err != nil {
			if apperr.IsValidation(err) {
				// Still editing, buffer retained.
				return b.sendWithReplyMarkup(chatID, "The new text cannot be empty. Send it again or cancel.", cancelKeyboard())
			}
			b.clearDialog(chatID)
			return b.sendFailure(chatID, "save comment", err)
		}
		b.clearDialog(chatID)
		return b.sendCommentThread(ctx, chatID, state.ref)

	default:
		b.clearDialog(chatID)
		return b.sendText(chatID, "Dialog reset. Start over from /lists.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, state *conversationState) error {
	task, err := b.tasks.CreateTask(ctx, b.groupID, state.listID, state.task)
	if err != nil {
		return b.sendFailure(chatID, "save task", err)
	}

	log.Printf("[info] task created id=%d list=%d frequency=%s", task.ID, state.listID, task.Frequency)

	label, labelErr := recurrence.FormatLabel(task.Frequency)
	if labelErr != nil {
		label = string(task.Frequency)
	}
	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(task.Name)))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Date:</b> %s\n", task.Date.Format("2006-01-02")))
	summary.WriteString(fmt.Sprintf("• <b>Repeat:</b> %s\n", escape(label)))

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendListTasks(ctx, chatID, state.listID)
}

// sendFailure turns an error into user-facing copy per its kind: validation
// stays inline, auth and HTTP failures name the backend's complaint, and
// network failures invite a manual retry. Nothing is auto-retried.
func (b *Bot) sendFailure(chatID int64, action string, err error) error {
	switch {
	case apperr.IsValidation(err):
		return b.sendText(chatID, fmt.Sprintf("⚠️ %s", escape(err.Error())))
	case apperr.IsUnauthorized(err):
		return b.sendText(chatID, "🔒 The backend rejected the credential. Check API_TOKEN.")
	case apperr.IsNetwork(err):
		return b.sendText(chatID, fmt.Sprintf("📡 Could not %s: network trouble. Try again.", escape(action)))
	default:
		return b.sendText(chatID, fmt.Sprintf("Failed to %s: %s", escape(action), escape(err.Error())))
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) rememberChat(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.knownChats[chatID] = struct{}{}
}

func (b *Bot) chats() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, 0, len(b.knownChats))
	for id := range b.knownChats {
		out = append(out, id)
	}
	return out
}

func (b *Bot) setDialog(chatID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialogs[chatID] = state
}

func (b *Bot) getDialog(chatID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dialogs[chatID]
}

func (b *Bot) hasDialog(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.dialogs[chatID]
	return ok
}

func (b *Bot) clearDialog(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dialogs, chatID)
}

// cancelDialog clears the chat's dialog and reports whether there was one
// to cancel.
func (b *Bot) cancelDialog(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dialogs[chatID]; !ok {
		return false
	}
	delete(b.dialogs, chatID)
	return true
}

func statusIcon(status model.ListStatus) string {
	switch status {
	case model.StatusDone:
		return "✅"
	case model.StatusInProgress:
		return "🔵"
	default:
		return "⬜"
	}
}

func formatTaskLine(task model.Task) string {
	var b strings.Builder
	icon := "🔲"
	if task.Done() {
		icon = "☑️"
	}
	b.WriteString(fmt.Sprintf("%s %s", icon, escape(strings.TrimSpace(task.Name))))
	if label, err := recurrence.FormatLabel(task.Frequency); err == nil && task.Frequency != recurrence.Once {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(label)))
	}
	if task.CommentCount > 0 {
		b.WriteString(fmt.Sprintf(" 💬%d", task.CommentCount))
	}
	b.WriteByte('\n')
	return b.String()
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelLists),
			tgbotapi.NewKeyboardButton(menuLabelToday),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func frequencyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, f := range []recurrence.Frequency{recurrence.Once, recurrence.Daily, recurrence.Weekly, recurrence.Monthly} {
		label, err := recurrence.FormatLabel(f)
		if err != nil {
			continue
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func parseDateInput(text string) (time.Time, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "today" {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", text)
}

func parseWeekDays(text string) ([]time.Weekday, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no weekdays given")
	}
	seen := make(map[int]bool)
	var days []time.Weekday
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q", f)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

func parseInt(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func parseTaskRef(payload string) (taskRef, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		return taskRef{}, fmt.Errorf("invalid ref %q", payload)
	}
	listID, err1 := parseInt(parts[0])
	taskID, err2 := parseInt(parts[1])
	if err1 != nil || err2 != nil {
		return taskRef{}, fmt.Errorf("invalid ref %q", payload)
	}
	return taskRef{listID: listID, taskID: taskID}, nil
}

func parseThree(payload string) (int64, int64, int64, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid payload %q", payload)
	}
	a, err1 := parseInt(parts[0])
	b, err2 := parseInt(parts[1])
	c, err3 := parseInt(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, fmt.Errorf("invalid payload %q", payload)
	}
	return a, b, c, nil
}

func escape(s string) string {
	return html.EscapeString(s)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
