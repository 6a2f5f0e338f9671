package api

import (
	"strconv"

	"taskhub/internal/api/response"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/pkg/requestctx"
	"taskhub/internal/service"

	"github.com/gin-gonic/gin"
)

// currentUserID 读取 AuthGuard 写入的用户。
func currentUserID(c *gin.Context) (uint, bool) {
	user, ok := requestctx.UserFromContext(c.Request.Context())
	if !ok {
		return 0, false
	}
	return user.ID, true
}

// pathID 解析路径中的 :id。非正整数与不存在同样处理。
func pathID(c *gin.Context, notFound string) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.NotFound(notFound)
	}
	return uint(id), nil
}

// withUser 取出当前用户后调用 fn；缺少用户时返回 401。
func (s *Server) withUser(fn func(c *gin.Context, userID uint)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.Error(c, s.logger, apperr.Unauthenticated("Unauthorized"))
			return
		}
		fn(c, userID)
	}
}

func (s *Server) handleListTasks(c *gin.Context, userID uint) {
	tasks, err := s.tasks.ListTasks(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.List(c, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context, userID uint) {
	var req service.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, s.logger, apperr.Validation("Invalid request body"))
		return
	}
	task, err := s.tasks.CreateTask(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.Created(c, task)
}

func (s *Server) handleGetTask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgTaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	task, err := s.tasks.GetTask(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, task)
}

// handleUpdateTask 先校验归属再解析请求体，别人的任务总是 404。
func (s *Server) handleUpdateTask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgTaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	owned, err := s.tasks.Policy().AssertTaskOwnership(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	var req service.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, s.logger, apperr.Validation("Invalid request body"))
		return
	}
	task, err := s.tasks.UpdateOwnedTask(c.Request.Context(), owned, req)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, task)
}

func (s *Server) handleDeleteTask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgTaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	task, err := s.tasks.DeleteTask(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, task)
}

func (s *Server) handleListSubtasks(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgTaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	subtasks, err := s.tasks.ListSubtasks(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.List(c, subtasks)
}

func (s *Server) handleCreateSubtask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgTaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	task, err := s.tasks.Policy().AssertTaskOwnership(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	var req service.SubtaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, s.logger, apperr.Validation("Invalid request body"))
		return
	}
	subtask, err := s.tasks.CreateSubtaskUnder(c.Request.Context(), task, req)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.Created(c, subtask)
}

func (s *Server) handleGetSubtask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgSubtaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	subtask, err := s.tasks.GetSubtask(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, subtask)
}

func (s *Server) handleUpdateSubtask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgSubtaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	owned, err := s.tasks.Policy().AssertSubtaskOwnership(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	var req service.SubtaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, s.logger, apperr.Validation("Invalid request body"))
		return
	}
	subtask, err := s.tasks.UpdateOwnedSubtask(c.Request.Context(), owned, req)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, subtask)
}

func (s *Server) handleDeleteSubtask(c *gin.Context, userID uint) {
	id, err := pathID(c, service.MsgSubtaskNotFound)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	subtask, err := s.tasks.DeleteSubtask(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	response.OK(c, subtask)
}
