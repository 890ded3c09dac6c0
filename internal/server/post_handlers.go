package server

import (
	"inkwell/internal/pagination"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts
// @Summary List posts
// @Description Most recent first, keyset paginated on (created_at, id)
// @Tags posts
// @Produce json
// @Param cursor query string false "created_at of the last post seen (RFC 3339)"
// @Param cursor_id query int false "id of the last post seen"
// @Param limit query int false "Page size (1-100, default 100)"
// @Success 200 {object} object{items=[]models.Post,next_cursor=string,next_cursor_id=int,has_more=bool}
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	req, err := parsePageRequest(c, pagination.DefaultPostLimit, pagination.Descending)
	if err != nil {
		return err
	}
	// Posts are always listed newest first.
	req.Direction = pagination.Descending

	page, err := s.postService.ListPosts(c.UserContext(), req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,content=string,image=string} true "Post"
// @Success 201 {object} object{post_id=int,post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Image   string `json:"image"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		Actor:   actor(c),
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post_id": post.ID,
		"post":    post,
	})
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Description Counts one view per reader per UTC day
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), service.GetPostInput{
		PostID:    postID,
		Actor:     actor(c),
		ViewerKey: viewerKey(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(post)
}

// GetPostMeta handles GET /api/posts/:id/meta
// @Summary Post counters
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.PostMeta
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/meta [get]
func (s *Server) GetPostMeta(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	meta, err := s.postService.Meta(c.UserContext(), postID)
	if err != nil {
		return err
	}
	return c.JSON(meta)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Update a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{title=string,content=string,image=string} true "Fields to change"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
		Image   *string `json:"image"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		Actor:   actor(c),
		PostID:  postID,
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		return err
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete a post
// @Description Removes the post with its comments, likes and views
// @Tags posts
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.UserContext(), postID, actor(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like
// @Summary Like or unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} models.LikeResult
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.likeService.Toggle(c.UserContext(), postID, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// GetLikeStatus handles GET /api/posts/:id/like-status
// @Summary Whether the current user likes a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{liked=bool}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like-status [get]
func (s *Server) GetLikeStatus(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	liked, err := s.likeService.Status(c.UserContext(), postID, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"liked": liked})
}
